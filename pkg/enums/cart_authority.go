package enums

import "fmt"

// CartAuthority names the adapter that owns the durable copy of a cart.
type CartAuthority string

const (
	CartAuthorityLocal  CartAuthority = "local"
	CartAuthorityRemote CartAuthority = "remote"
)

var validCartAuthorities = []CartAuthority{
	CartAuthorityLocal,
	CartAuthorityRemote,
}

func (c CartAuthority) String() string {
	return string(c)
}

func (c CartAuthority) IsValid() bool {
	for _, candidate := range validCartAuthorities {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseCartAuthority(value string) (CartAuthority, error) {
	for _, candidate := range validCartAuthorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart authority %q", value)
}
