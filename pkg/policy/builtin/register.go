package builtin

import (
	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
)

// Registered kinds.
const (
	TypeAuthenticate  = "authenticate"
	TypeAddHeader     = "add_header"
	TypeRemoveHeader  = "remove_header"
	TypeAddBackendKey = "add_backend_key"
	TypeSetModel      = "set_model"
	TypeSetData       = "set_data"
	TypeBlock         = "block"
	TypeRespond       = "respond"
	TypeForward       = "forward"
	TypeOpenAIForward = "openai_forward"
	TypeUppercase     = "uppercase"
	TypeRegexReplace  = "regex_replace"
	TypeResponseGuard = "response_guard"
	TypeAudit         = "audit"
)

// RegisterAll adds every built-in kind to t.
func RegisterAll(t *loader.TypeTable) {
	loader.Register(t, policy.TypeNoop, newNoop)
	loader.Register(t, TypeAuthenticate, newAuthenticate)
	loader.Register(t, TypeAddHeader, newAddHeader)
	loader.Register(t, TypeRemoveHeader, newRemoveHeader)
	loader.Register(t, TypeAddBackendKey, newAddBackendKey)
	loader.Register(t, TypeSetModel, newSetModel)
	loader.Register(t, TypeSetData, newSetData)
	loader.Register(t, TypeBlock, newBlock)
	loader.Register(t, TypeRespond, newRespond)
	loader.Register(t, TypeForward, newForward)
	loader.Register(t, TypeOpenAIForward, newOpenAIForward)
	loader.Register(t, TypeUppercase, newUppercase)
	loader.Register(t, TypeRegexReplace, newRegexReplace)
	loader.Register(t, TypeResponseGuard, newResponseGuard)
	loader.Register(t, TypeAudit, newAudit)
}

// NewTypeTable returns a table holding every built-in kind.
func NewTypeTable() *loader.TypeTable {
	t := loader.NewTypeTable()
	RegisterAll(t)
	return t
}
