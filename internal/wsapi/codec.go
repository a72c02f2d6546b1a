package wsapi

import "encoding/base64"

func decodeAudio(audioData string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(audioData); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(audioData)
}
