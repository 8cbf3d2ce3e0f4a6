package capture

import "github.com/vmihailenco/msgpack/v5"

// EncodeSources encodes sources with raw image bytes for binary clients.
func EncodeSources(sources []Source) ([]byte, error) {
	return msgpack.Marshal(sources)
}

// DecodeSources is the inverse of EncodeSources.
func DecodeSources(b []byte) ([]Source, error) {
	var sources []Source
	if err := msgpack.Unmarshal(b, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}
