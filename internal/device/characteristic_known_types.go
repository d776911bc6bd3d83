package device

// Health profile characteristic UUIDs in normalized form.
const (
	CharacteristicTemperature     = "2a1c"
	CharacteristicBloodPressure   = "2a35"
	CharacteristicRACP            = "2a52"
	CharacteristicBodyComposition = "2a9c"
	CharacteristicWeight          = "2a9d"

	// Omron vendor characteristic carrying blood pressure spot-check readings.
	CharacteristicOmronSpotCheck = "b305b680aee711e1a7300002a5d5c51b"
)

var characteristicNames = map[string]string{
	CharacteristicTemperature:     "Temperature Measurement",
	CharacteristicBloodPressure:   "Blood Pressure Measurement",
	CharacteristicRACP:            "Record Access Control Point",
	CharacteristicBodyComposition: "Body Composition Measurement",
	CharacteristicWeight:          "Weight Measurement",
	CharacteristicOmronSpotCheck:  "Omron Spot-Check Blood Pressure",
}

// CharacteristicName returns a human-readable name for a known characteristic,
// or "" when the UUID is not one the application understands.
func CharacteristicName(uuid string) string {
	return characteristicNames[NormalizeUUID(uuid)]
}

// IsMeasurementCharacteristic reports whether the UUID carries measurement payloads.
func IsMeasurementCharacteristic(uuid string) bool {
	switch NormalizeUUID(uuid) {
	case CharacteristicTemperature, CharacteristicBloodPressure, CharacteristicBodyComposition,
		CharacteristicWeight, CharacteristicOmronSpotCheck:
		return true
	}
	return false
}
