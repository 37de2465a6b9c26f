package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseEventID checks that parsing never panics and that accepted IDs
// round-trip through String.
func FuzzParseEventID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE compliance_events;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseEventID(input)
		if err == nil {
			roundTrip, err2 := ParseEventID(id.String())
			if err2 != nil {
				t.Errorf("Valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("Round-trip changed ID value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("Non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAllIDs ensures all ID types accept and reject the same inputs.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errEvent := ParseEventID(input)
		_, errEmployer := ParseEmployerID(input)
		_, errNotification := ParseNotificationID(input)

		if (errEvent == nil) != (errEmployer == nil) || (errEvent == nil) != (errNotification == nil) {
			t.Error("Inconsistent parsing across ID types")
		}
	})
}
