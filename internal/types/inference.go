package types

// Inference request protocol messages. Same hash/signature field-name
// conventions as the credit pack messages.

// Inference type strings accepted by the result decoder.
const (
	InferenceTypeTextCompletion    = "text_completion"
	InferenceTypeImageGeneration   = "text_to_image"
	InferenceTypeDocumentEmbedding = "embedding_document"
)

// InferenceAPIUsageRequest submits a single inference job scoped to a
// previously purchased credit pack.
type InferenceAPIUsageRequest struct {
	InferenceRequestID     string `json:"inference_request_id"`
	RequesterPastelID      string `json:"requester_pastelid"`
	CreditPackTicketTxID   string `json:"credit_pack_ticket_pastel_txid"`
	ModelCanonicalName     string `json:"requested_model_canonical_string"`
	ModelInferenceType     string `json:"model_inference_type_string"`
	ModelParametersJSONB64 string `json:"model_parameters_json_b64"`
	InputDataB64           string `json:"model_input_data_json_b64"`
	RequestTimestamp       string `json:"inference_request_utc_iso_string"`
	RequestBlockHeight     int64  `json:"inference_request_pastel_block_height"`
	Hash                   string `json:"sha3_256_hash_of_inference_request_fields"`
	RequesterSignature     string `json:"requester_pastelid_signature_on_request_hash"`
}

// InferenceAPIUsageResponse quotes the credit cost and names the tracking
// payment the requester must make before the job runs.
type InferenceAPIUsageResponse struct {
	InferenceResponseID         string  `json:"inference_response_id"`
	InferenceRequestID          string  `json:"inference_request_id"`
	RespondingSupernodePastelID string  `json:"responding_supernode_pastelid"`
	RequestHash                 string  `json:"sha3_256_hash_of_inference_request_fields"`
	ProposedCostInCredits       float64 `json:"proposed_cost_of_request_in_inference_credits"`
	RemainingCredits            float64 `json:"remaining_credits_in_pack_after_request_processed"`
	TrackingAddress             string  `json:"credit_usage_tracking_psl_address"`
	TrackingAmount              float64 `json:"credit_usage_tracking_amount_in_psl"`
	ResponseTimestamp           string  `json:"inference_response_utc_iso_string"`
	ResponseBlockHeight         int64   `json:"inference_response_pastel_block_height"`
	Hash                        string  `json:"sha3_256_hash_of_inference_response_fields"`
	SupernodeSignature          string  `json:"responding_supernode_pastelid_signature_on_response_hash"`
}

// InferenceConfirmation notifies the supernode that the tracking payment
// was broadcast.
type InferenceConfirmation struct {
	InferenceRequestID    string `json:"inference_request_id"`
	RequesterPastelID     string `json:"requester_pastelid"`
	RequestHash           string `json:"sha3_256_hash_of_inference_request_fields"`
	ConfirmationTxID      string `json:"confirmation_transaction_txid"`
	ConfirmationTimestamp string `json:"inference_confirmation_utc_iso_string"`
	Hash                  string `json:"sha3_256_hash_of_inference_confirmation_fields"`
	RequesterSignature    string `json:"requester_pastelid_signature_on_confirmation_hash"`
}

// InferenceOutputResult carries the completed job's output payload.
type InferenceOutputResult struct {
	InferenceResultID           string `json:"inference_result_id"`
	InferenceRequestID          string `json:"inference_request_id"`
	InferenceResponseID         string `json:"inference_response_id"`
	RespondingSupernodePastelID string `json:"responding_supernode_pastelid"`
	ResultJSONB64               string `json:"inference_result_json_base64"`
	ResultTimestamp             string `json:"inference_result_utc_iso_string"`
	ResultBlockHeight           int64  `json:"inference_result_pastel_block_height"`
	Hash                        string `json:"sha3_256_hash_of_inference_result_fields"`
	SupernodeSignature          string `json:"responding_supernode_pastelid_signature_on_result_hash"`
}

// ModelParameter declares one accepted parameter of a model.
type ModelParameter struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// ModelInfo is one entry of a supernode's capability menu.
type ModelInfo struct {
	Name                    string           `json:"model_name"`
	SupportedInferenceTypes []string         `json:"supported_inference_type_strings"`
	Parameters              []ModelParameter `json:"model_parameters"`
}

// ModelMenu is the capability menu served by a supernode.
type ModelMenu struct {
	Models []ModelInfo `json:"model_menu"`
}

// FindModel returns the menu entry for the named model, if present.
func (m ModelMenu) FindModel(name string) (ModelInfo, bool) {
	for _, mi := range m.Models {
		if mi.Name == name {
			return mi, true
		}
	}
	return ModelInfo{}, false
}

// SupportsInferenceType reports whether the model serves the given
// inference type string.
func (mi ModelInfo) SupportsInferenceType(inferenceType string) bool {
	for _, t := range mi.SupportedInferenceTypes {
		if t == inferenceType {
			return true
		}
	}
	return false
}
