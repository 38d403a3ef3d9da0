package tracker

import "encoding/json"

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalInto(data []byte, dest interface{}) error {
	return json.Unmarshal(data, dest)
}
