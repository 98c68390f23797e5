package eventdispatch

import "encoding/json"

// Data wraps a map[string]any with notifiable lookup errors. It is the
// container handed around in administrative and error payloads; unlike
// config.Config it does not default missing values, it reports them.
type Data struct {
	data map[string]any
}

// NewData creates a Data from the given map.
// Fails with ErrInvalidData when data is nil.
func NewData(data map[string]any) (*Data, error) {
	if data == nil {
		return nil, newInvalidDataError(nil)
	}
	return &Data{data: data}, nil
}

// Get returns the value for key.
// Fails with ErrMissingKey when the key is absent; the error payload carries
// the key and a view of the searched data.
func (d *Data) Get(key string) (any, error) {
	v, ok := d.data[key]
	if !ok {
		return nil, newMissingKeyError(nil, key, d.data)
	}
	return v, nil
}

// Map returns the underlying map.
// The returned map should not be modified.
func (d *Data) Map() map[string]any {
	return d.data
}

// JSON returns the data serialized as JSON.
func (d *Data) JSON() ([]byte, error) {
	return json.Marshal(d.data)
}
