package domain

// RetrieveRequest is the wire form of a retrieval call shared by the HTTP API
// and the NATS worker. Unset switches fall back to the service defaults.
type RetrieveRequest struct {
	Query          string      `json:"query"`
	Scope          ScopeFilter `json:"scope"`
	TopK           *int        `json:"top_k,omitempty"`
	EnableMultihop *bool       `json:"enable_multihop,omitempty"`
	EnableHyDE     *bool       `json:"enable_hyde,omitempty"`
	EnableFallback *bool       `json:"enable_fallback,omitempty"`
	// TopN limits reranked contexts; only the context endpoint reads it.
	TopN int `json:"top_n,omitempty"`
}

func (r RetrieveRequest) ToQuery() Query {
	return Query{Text: r.Query, Scope: r.Scope}
}

func (r RetrieveRequest) ResolveOptions(defaults RetrieveOptions) RetrieveOptions {
	out := defaults
	if r.TopK != nil {
		out.TopK = *r.TopK
	}
	if r.EnableMultihop != nil {
		out.EnableMultihop = *r.EnableMultihop
	}
	if r.EnableHyDE != nil {
		out.EnableHyDE = *r.EnableHyDE
	}
	if r.EnableFallback != nil {
		out.EnableFallback = *r.EnableFallback
	}
	return out
}
