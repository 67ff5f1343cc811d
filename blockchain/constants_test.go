package blockchain

import "testing"

func TestParseHashAlgorithm(t *testing.T) {
	testCases := []struct {
		input       string
		expected    HashAlgorithm
		expectError bool
	}{
		{"", SHA256, false},
		{"sha256", SHA256, false},
		{" SHA-256 ", SHA256, false},
		{"blake3", BLAKE3, false},
		{"BLAKE3", BLAKE3, false},
		{"md5", "", true},
	}

	for _, tc := range testCases {
		t.Run("input_"+tc.input, func(t *testing.T) {
			actual, err := ParseHashAlgorithm(tc.input)
			if tc.expectError {
				if err == nil {
					t.Errorf("Expected error for %q, got %q", tc.input, actual)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tc.input, err)
			}
			if actual != tc.expected {
				t.Errorf("Expected %q for %q, got %q", tc.expected, tc.input, actual)
			}
		})
	}
}

func TestHashAlgorithmString(t *testing.T) {
	if HashAlgorithm("").String() != "sha256" {
		t.Errorf("Expected zero value to report sha256")
	}
	if BLAKE3.String() != "blake3" {
		t.Errorf("Expected blake3, got %s", BLAKE3.String())
	}
}
