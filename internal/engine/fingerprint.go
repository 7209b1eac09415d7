package engine

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// encMode — CBOR Core Deterministic Encoding (RFC 8949 §4.2):
// отсортированные ключи map, минимальное кодирование чисел.
// Одинаковые данные всегда дают одинаковые байты.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("engine: CBOR encoder initialization failed: " + err.Error())
	}
}

// fingerprintNode — каноническое представление узла для отпечатка.
type fingerprintNode struct {
	ID              string             `cbor:"id"`
	Kind            string             `cbor:"kind"`
	Guard           *fingerprintGuard  `cbor:"guard,omitempty"`
	Step            string             `cbor:"step,omitempty"`
	Params          map[string]any     `cbor:"params,omitempty"`
	RetryMax        int                `cbor:"retry_max,omitempty"`
	Backoff         string             `cbor:"backoff,omitempty"`
	InitialDelayMs  int                `cbor:"initial_delay_ms,omitempty"`
	MaxDelayMs      int                `cbor:"max_delay_ms,omitempty"`
	TimeoutNs       int64              `cbor:"timeout_ns,omitempty"`
	ContinueOnError bool               `cbor:"continue_on_error,omitempty"`
	Children        []*fingerprintNode `cbor:"children,omitempty"`
}

type fingerprintGuard struct {
	Branch string            `cbor:"branch,omitempty"`
	Vars   map[string]string `cbor:"vars,omitempty"`
	Expr   string            `cbor:"expr,omitempty"`
}

type fingerprintPipeline struct {
	Name        string           `cbor:"name"`
	Permissions []string         `cbor:"permissions,omitempty"`
	Root        *fingerprintNode `cbor:"root"`
}

// fingerprint вычисляет BLAKE3 от детерминированного CBOR графа.
func fingerprint(p *Pipeline) (string, error) {
	data, err := encMode.Marshal(&fingerprintPipeline{
		Name:        p.Name,
		Permissions: p.Permissions,
		Root:        canonicalNode(p.Root),
	})
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalNode(n *Node) *fingerprintNode {
	fn := &fingerprintNode{
		ID:              n.ID,
		Kind:            string(n.Kind),
		ContinueOnError: n.ContinueOnError,
	}
	if n.Guard != nil {
		fn.Guard = &fingerprintGuard{Branch: n.Guard.Branch, Vars: n.Guard.Vars, Expr: n.Guard.Expr}
	}
	if inv := n.Invocation; inv != nil {
		fn.Step = inv.Step.Ref()
		fn.Params = inv.Params
		fn.RetryMax = inv.Retry.Max
		fn.Backoff = inv.Retry.Backoff
		fn.InitialDelayMs = inv.Retry.InitialDelayMs
		fn.MaxDelayMs = inv.Retry.MaxDelayMs
		fn.TimeoutNs = int64(inv.Timeout)
	}
	for _, child := range n.Children {
		fn.Children = append(fn.Children, canonicalNode(child))
	}
	return fn
}
