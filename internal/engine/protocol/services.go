package protocol

import "strconv"

// wellKnownServices maps destination ports to the service names the
// classifier was trained on.
var wellKnownServices = map[uint16]string{
	20:   "ftp-data",
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "domain",
	80:   "http",
	110:  "pop3",
	143:  "imap4",
	443:  "https",
	3306: "mysql",
	5432: "postgres",
}

// ServiceForPort returns the service name of a destination port, or the port
// number in decimal when it is not a well-known one.
func ServiceForPort(port uint16) string {
	if name, ok := wellKnownServices[port]; ok {
		return name
	}
	return strconv.Itoa(int(port))
}
