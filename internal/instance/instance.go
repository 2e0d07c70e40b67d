package instance

import (
	"net"
	"net/url"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Instance is a single backend server the balancer can route to.
// It is a plain value; the pool owns the authoritative copy.
type Instance struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	Healthy bool   `json:"healthy"`
}

// New returns an instance that starts healthy until its first probe says otherwise.
func New(address string, port int) Instance {
	return Instance{
		Address: address,
		Port:    port,
		Healthy: true,
	}
}

// HostPort returns the instance address in host:port form.
func (i Instance) HostPort() string {
	return net.JoinHostPort(i.Address, strconv.Itoa(i.Port))
}

// Is reports whether i refers to the given address and port.
func (i Instance) Is(address string, port int) bool {
	return i.Address == address && i.Port == port
}

// URL builds an http URL pointing at path on this instance. Percent-escapes
// in path are sent as given.
func (i Instance) URL(path, rawQuery string) *url.URL {
	u := &url.URL{
		Scheme:   "http",
		Host:     i.HostPort(),
		Path:     path,
		RawQuery: rawQuery,
	}

	if unescaped, err := url.PathUnescape(path); err == nil && unescaped != path {
		u.Path = unescaped
		u.RawPath = path
	}

	return u
}

func (i Instance) String() string {
	return i.HostPort()
}

// Validate checks that address is a host name or IP and port is a usable TCP port.
func Validate(address string, port int) error {
	return validation.Errors{
		"address": validation.Validate(address, validation.Required, is.Host),
		"port":    validation.Validate(port, validation.Required, validation.Min(1), validation.Max(65535)),
	}.Filter()
}
