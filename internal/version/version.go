package version

// Current is the released version, without a "v" prefix.
const Current = "0.3.1"

// UserAgent is sent with every outbound request.
func UserAgent() string {
	return "orthomap/" + Current
}
