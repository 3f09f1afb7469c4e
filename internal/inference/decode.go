package inference

import (
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/pastelnetwork/go-inference-client/internal/types"
)

// DecodedOutput is the inference payload decoded according to the job's
// declared inference type. Exactly one of Text, ImageData or ArchiveData
// is populated.
type DecodedOutput struct {
	InferenceType string
	Text          string
	ImageData     []byte
	ArchiveData   []byte
}

// DecodeOutput decodes a result payload. The dispatch is driven by the
// inference type string the job was submitted with, never guessed from
// the payload shape: image generation yields binary image data, document
// embedding yields an archive, everything else is opaque text.
func DecodeOutput(result *types.InferenceOutputResult, inferenceType string) (*DecodedOutput, error) {
	payload, err := base64.StdEncoding.DecodeString(result.ResultJSONB64)
	if err != nil {
		return nil, errors.Wrap(err, "malformed result payload encoding")
	}

	out := &DecodedOutput{InferenceType: inferenceType}
	switch inferenceType {
	case types.InferenceTypeImageGeneration:
		out.ImageData = payload
	case types.InferenceTypeDocumentEmbedding:
		out.ArchiveData = payload
	default:
		out.Text = string(payload)
	}
	return out, nil
}
