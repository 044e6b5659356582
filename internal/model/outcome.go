package model

// OutcomeKind classifies the result of one transport call. Classification
// happens exactly once, at the transport boundary; everything downstream
// switches on the kind instead of inspecting raw errors.
type OutcomeKind string

const (
	// OutcomeSuccess: the ledger accepted the mint and assigned a token.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeRemoteRejected: the ledger refused the request at the
	// application level. Retrying the identical payload cannot succeed.
	OutcomeRemoteRejected OutcomeKind = "remote_rejected"
	// OutcomeTransportFailure: no usable response was obtained (network
	// error, connection reset, timeout). Retryable.
	OutcomeTransportFailure OutcomeKind = "transport_failure"
	// OutcomeAuthFailure: the operator identity was rejected. Systemic;
	// aborts the whole batch.
	OutcomeAuthFailure OutcomeKind = "auth_failure"
)

// CallOutcome is the tagged result of one transport invocation.
type CallOutcome struct {
	Kind        OutcomeKind `yaml:"kind" json:"kind"`
	TokenID     string      `yaml:"token_id,omitempty" json:"token_id,omitempty"`
	TxSignature string      `yaml:"tx_signature,omitempty" json:"tx_signature,omitempty"`
	Reason      string      `yaml:"reason,omitempty" json:"reason,omitempty"`
}

func Success(tokenID, txSignature string) CallOutcome {
	return CallOutcome{Kind: OutcomeSuccess, TokenID: tokenID, TxSignature: txSignature}
}

func RemoteRejected(reason string) CallOutcome {
	return CallOutcome{Kind: OutcomeRemoteRejected, Reason: reason}
}

func TransportFailure(reason string) CallOutcome {
	return CallOutcome{Kind: OutcomeTransportFailure, Reason: reason}
}

func AuthFailure(reason string) CallOutcome {
	return CallOutcome{Kind: OutcomeAuthFailure, Reason: reason}
}
