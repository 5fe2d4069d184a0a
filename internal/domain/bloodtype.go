package domain

// BloodType is one of the eight antigen/Rh combinations. It is the
// partitioning key for inventory and a weak reference on requests.
type BloodType string

const (
	BloodAPos  BloodType = "A+"
	BloodANeg  BloodType = "A-"
	BloodABPos BloodType = "AB+"
	BloodABNeg BloodType = "AB-"
	BloodBPos  BloodType = "B+"
	BloodBNeg  BloodType = "B-"
	BloodOPos  BloodType = "O+"
	BloodONeg  BloodType = "O-"
)

// BloodTypes lists every valid blood type in ascending order.
var BloodTypes = []BloodType{
	BloodAPos, BloodANeg, BloodABPos, BloodABNeg,
	BloodBPos, BloodBNeg, BloodOPos, BloodONeg,
}

// ParseBloodType validates a raw blood type string.
func ParseBloodType(raw string) (BloodType, error) {
	bt := BloodType(raw)
	for _, known := range BloodTypes {
		if bt == known {
			return bt, nil
		}
	}
	return "", Validationf("invalid blood type %q", raw)
}

func (bt BloodType) Valid() bool {
	_, err := ParseBloodType(string(bt))
	return err == nil
}

func (bt BloodType) String() string {
	return string(bt)
}
