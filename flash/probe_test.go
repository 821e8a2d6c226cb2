package flash

import "testing"

func TestParseFamily(t *testing.T) {
	tests := []struct {
		in      string
		want    Family
		wantErr bool
	}{
		{in: "", want: FamilyAuto},
		{in: "auto", want: FamilyAuto},
		{in: "NRF52", want: FamilyNRF52},
		{in: "nrf53", want: FamilyNRF53},
		{in: " Nrf91 ", want: FamilyNRF91},
		{in: "NRF51", wantErr: true},
		{in: "stm32", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFamily(tt.in)
		if tt.wantErr {
			if !IsKind(err, KindConfiguration) {
				t.Errorf("ParseFamily(%q): expected configuration error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFamily(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFamily(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEraseModeString(t *testing.T) {
	if EraseAll.String() != "erase-all" || EraseBlock.String() != "erase-4k" {
		t.Errorf("unexpected names %s %s", EraseAll, EraseBlock)
	}
}
