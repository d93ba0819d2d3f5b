package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

func buildDecompositionPrompt(query domain.Query) string {
	var scope strings.Builder
	for _, key := range query.Scope.LocatorKeys() {
		scope.WriteString(fmt.Sprintf("- %s = %s\n", key, query.Scope.Locators[key]))
	}
	if scope.Len() == 0 {
		scope.WriteString("- (sin filtros estructurales)\n")
	}

	return fmt.Sprintf(`Eres un analizador de consultas sobre normativa.
Clasifica la consulta y, si necesita varias búsquedas independientes, descomponla en subconsultas.
Devuelve un objeto JSON estricto con exactamente estas claves:
type (uno de: simple_semantic, structural, conditional, comparison, procedural, aggregation),
requires_multihop (booleano),
sub_queries (arreglo de cadenas; vacío si requires_multihop es false),
recommended_top_k (entero, 0 si no tienes recomendación).
Si requires_multihop es true, sub_queries no puede estar vacío.
Sin markdown, sin claves adicionales.

Filtros:
%s
Consulta:
%s
`, scope.String(), strings.TrimSpace(query.Text))
}
