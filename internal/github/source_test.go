package github

import "testing"

// TestDeriveComponentInfo tests component identity inference from
// repository paths.
func TestDeriveComponentInfo(t *testing.T) {
	tests := []struct {
		path         string
		wantMPN      string
		wantCategory string
	}{
		{"sensors/bme280.md", "BME280", "sensors"},
		{"Power/regulators/lm2596.txt", "LM2596", "power"},
		{"stm32f103.md", "STM32F103", ""},
		{"sensors/SHT31-DIS.markdown", "SHT31-DIS", "sensors"},
	}

	for _, tt := range tests {
		info := DeriveComponentInfo(tt.path)
		if info.MPN != tt.wantMPN {
			t.Errorf("DeriveComponentInfo(%q).MPN = %q, want %q", tt.path, info.MPN, tt.wantMPN)
		}
		if info.Category != tt.wantCategory {
			t.Errorf("DeriveComponentInfo(%q).Category = %q, want %q", tt.path, info.Category, tt.wantCategory)
		}
	}
}

// TestIsDatasheetFile tests the extension allow-list.
func TestIsDatasheetFile(t *testing.T) {
	for _, name := range []string{"bme280.md", "notes.TXT", "ds.markdown"} {
		if !isDatasheetFile(name) {
			t.Errorf("isDatasheetFile(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"scan.pdf", "README", "image.png"} {
		if isDatasheetFile(name) {
			t.Errorf("isDatasheetFile(%q) = true, want false", name)
		}
	}
}
