package authflow

// State is the machine's position in the registration dialogue.
type State int

const (
	StateName State = iota
	StateCountry
	StateAuthFileName
	StateAuthFileEncrypt
	StateBrowserChoice
	StatePreAccountChoice
	StateConfirm
	StateAwaitURL
	StateAwaitResponse
	StateVerify
)

var stateNames = map[State]string{
	StateName:             "NAME",
	StateCountry:          "COUNTRY",
	StateAuthFileName:     "AUTH_FILE_NAME",
	StateAuthFileEncrypt:  "AUTH_FILE_ENCRYPT",
	StateBrowserChoice:    "BROWSER_CHOICE",
	StatePreAccountChoice: "PRE_ACCOUNT_CHOICE",
	StateConfirm:          "CONFIRM",
	StateAwaitURL:         "AWAIT_URL",
	StateAwaitResponse:    "AWAIT_RESPONSE",
	StateVerify:           "VERIFY",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "INVALID"
}

// Expected prompt substrings per scripted state. The tool's phrasing is
// stable across the versions we support.
var prompts = map[State]string{
	StateName:             "Please enter a name for your primary profile",
	StateCountry:          "Enter a country code for the profile",
	StateAuthFileName:     "Please enter a name for the auth file",
	StateAuthFileEncrypt:  "Do you want to encrypt the auth file",
	StateBrowserChoice:    "Do you want to login with external browser",
	StatePreAccountChoice: "Do you want to login with a pre-Amazon Audible account",
	StateConfirm:          "Do you want to continue",
	StateAwaitURL:         "Please copy the following url and insert it into a web browser",
}

const (
	successMarker   = "Successfully registered"
	tracebackMarker = "Traceback (most recent call last)"
	exceptionMarker = "Exception:"
)
