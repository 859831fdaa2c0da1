package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

const (
	MimeVideo       = "video/"
	MimeImage       = "image/"
	MimePDF         = "application/pdf"
	MimeOctetStream = "application/octet-stream"
)

var (
	AllowedVideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".flv", ".webm"}
	AllowedImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
)

// Nationalities is the closed set of attendee nationality codes
// accepted by the verification workflow. It mirrors the rows seeded
// into the nationalities table at migration time.
var Nationalities = map[string]string{
	"KR": "Korean",
	"VN": "Vietnamese",
	"CN": "Chinese",
	"TH": "Thai",
	"PH": "Filipino",
	"ID": "Indonesian",
	"MM": "Burmese",
	"KH": "Cambodian",
	"NP": "Nepali",
	"LK": "Sri Lankan",
	"BD": "Bangladeshi",
	"MN": "Mongolian",
	"UZ": "Uzbek",
	"RU": "Russian",
	"US": "American",
	"KZ": "Kazakh",
}

func IsValidNationality(code string) bool {
	_, ok := Nationalities[code]
	return ok
}
