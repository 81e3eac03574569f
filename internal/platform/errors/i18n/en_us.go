package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown              = "UNKNOWN"
	CodeNotFound             = "NOT_FOUND"
	CodeEntityNotFound       = "ENTITY_NOT_FOUND"
	CodeOutputNotFound       = "OUTPUT_NOT_FOUND"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeEventActionMalformed = "EVENT_ACTION_MALFORMED"
	CodeAllocationExhausted  = "ALLOCATION_EXHAUSTED"
)

var enUSMessages = map[Code]string{
	CodeUnknown:              "An unexpected error occurred.",
	CodeNotFound:             "No action exists at index {{.Index}}.",
	CodeEntityNotFound:       "Invalid entity {{.Entity}}.",
	CodeOutputNotFound:       "Entity {{.Entity}} has no output named {{.Output}}.",
	CodeInvalidArgument:      "Invalid argument: {{.Reason}}.",
	CodeEventActionMalformed: "Event action {{.Raw}} is malformed.",
	CodeAllocationExhausted:  "The action pool is exhausted.",
}

var ptBRMessages = map[Code]string{
	CodeUnknown:              "Ocorreu um erro inesperado.",
	CodeNotFound:             "Nenhuma ação existe no índice {{.Index}}.",
	CodeEntityNotFound:       "Entidade inválida {{.Entity}}.",
	CodeOutputNotFound:       "A entidade {{.Entity}} não possui a saída {{.Output}}.",
	CodeInvalidArgument:      "Argumento inválido: {{.Reason}}.",
	CodeEventActionMalformed: "A ação de evento {{.Raw}} está malformada.",
	CodeAllocationExhausted:  "O pool de ações está esgotado.",
}
