package strcase

import "testing"

func TestToLowerSnake(t *testing.T) {
	tests := map[string]string{
		"":            "",
		"Driver":      "driver",
		"MaxInFlight": "max_in_flight",
		"HTTPServer":  "http_server",
		"userID":      "user_id",
		"Base64Body":  "base64_body",
		"already_ok":  "already_ok",
		"ID":          "id",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := ToLowerSnake(in); got != want {
				t.Errorf("ToLowerSnake(%q) = %q, want %q", in, got, want)
			}
		})
	}
}
