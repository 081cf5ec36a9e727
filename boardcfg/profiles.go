package boardcfg

// Embedded board profiles. Keys are the names Build and PublishConfig
// accept; values are raw JSON. Generated profile sets can replace these
// through ProfileLookup.

// Pico carrier: I2C0 on GPIO 20/21, two I2C-capable sockets plus a
// GPIO-only one.
const profilePicoboard = `{
  "name": "picoboard",
  "gpio": {"min": 0, "max": 29},
  "i2c": {"controller": 0, "sda": 20, "scl": 21, "khz": 100},
  "sockets": [
    {"number": 1, "types": "IX", "pins": {"3": 2, "4": 3, "5": 6, "8": 26, "9": 27}},
    {"number": 2, "types": "IU", "pins": {"3": 8, "4": 9, "5": 10, "8": 14, "9": 15}},
    {"number": 3, "types": "XY", "pins": {"3": 16, "4": 17, "5": 18}}
  ],
  "services": {
    "busscan": {"socket": 1, "khz": 100, "from": 8, "to": 119}
  }
}`

// Host board for demos and integration tests: no native controller, all
// I2C sockets run through indirection.
const profileSimboard = `{
  "name": "simboard",
  "gpio": {"min": 0, "max": 63},
  "sockets": [
    {"number": 1, "types": "I", "pins": {"8": 8, "9": 9}},
    {"number": 2, "types": "I", "pins": {"8": 10, "9": 11}},
    {"number": 3, "types": "IX", "pins": {"3": 12, "8": 14, "9": 15}}
  ],
  "services": {
    "busscan": {"socket": 1, "khz": 400, "from": 80, "to": 95}
  }
}`

var embeddedProfiles = map[string][]byte{
	"picoboard": []byte(profilePicoboard),
	"simboard":  []byte(profileSimboard),
}
