// Package codecs holds the JSON codec used for event payloads and CLI output.
package codecs

// Codec marshals and unmarshals values to and from bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}
