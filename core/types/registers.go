package types

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

var registerKeys = [...]string{"R4", "R5", "R6", "R7", "R8", "R9"}

// Registers wraps a box's additionalRegisters JSON and provides access to the
// raw serialized constants. Decoding of sigma constants is left to consumers.
type Registers struct {
	raw json.RawMessage
}

func NewRegisters(raw json.RawMessage) Registers {
	return Registers{raw: raw}
}

// Register is a single additional register, still base16 encoded.
type Register struct {
	ID              int16
	SerializedValue string
}

// Get returns register Rn for n in 4..9.
func (r Registers) Get(n int16) (Register, bool) {
	if n < 4 || n > 9 {
		return Register{}, false
	}
	return r.get(registerKeys[n-4], n)
}

func (r Registers) R4() (Register, bool) { return r.get("R4", 4) }
func (r Registers) R5() (Register, bool) { return r.get("R5", 5) }
func (r Registers) R6() (Register, bool) { return r.get("R6", 6) }
func (r Registers) R7() (Register, bool) { return r.get("R7", 7) }
func (r Registers) R8() (Register, bool) { return r.get("R8", 8) }
func (r Registers) R9() (Register, bool) { return r.get("R9", 9) }

func (r Registers) get(key string, id int16) (Register, bool) {
	if len(r.raw) == 0 {
		return Register{}, false
	}
	res := gjson.GetBytes(r.raw, key)
	if !res.Exists() {
		return Register{}, false
	}
	// Registers are either plain hex strings or objects carrying a
	// serializedValue field, depending on node version.
	if res.IsObject() {
		sv := res.Get("serializedValue")
		if !sv.Exists() {
			return Register{}, false
		}
		return Register{ID: id, SerializedValue: sv.String()}, true
	}
	return Register{ID: id, SerializedValue: res.String()}, true
}

// Raw returns the underlying JSON for persistence.
func (r Registers) Raw() json.RawMessage {
	if len(r.raw) == 0 {
		return json.RawMessage("{}")
	}
	return r.raw
}
