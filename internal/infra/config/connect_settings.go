package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/ctpgate/errs"
)

// ConnectSettings holds the per-gateway front credentials and addresses.
type ConnectSettings struct {
	UserID          string `json:"userID"`
	Password        string `json:"password"`
	BrokerID        string `json:"brokerID"`
	TdAddress       string `json:"tdAddress"`
	MdAddress       string `json:"mdAddress"`
	AuthCode        string `json:"authCode,omitempty"`
	AppID           string `json:"appID,omitempty"`
	UserProductInfo string `json:"userProductInfo,omitempty"`
}

// LoadConnectSettings reads the JSON settings file. Missing files and malformed
// JSON are reported as configuration errors.
func LoadConnectSettings(gateway, path string) (ConnectSettings, error) {
	raw, err := os.ReadFile(filepath.Clean(strings.TrimSpace(path))) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return ConnectSettings{}, errs.New(gateway, errs.CodeConfig,
			errs.WithMessage("read connect settings "+path),
			errs.WithCause(err))
	}
	var settings ConnectSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return ConnectSettings{}, errs.New(gateway, errs.CodeConfig,
			errs.WithMessage("decode connect settings "+path),
			errs.WithCause(err))
	}
	settings.trim()
	return settings, nil
}

func (s *ConnectSettings) trim() {
	s.UserID = strings.TrimSpace(s.UserID)
	s.BrokerID = strings.TrimSpace(s.BrokerID)
	s.TdAddress = strings.TrimSpace(s.TdAddress)
	s.MdAddress = strings.TrimSpace(s.MdAddress)
	s.AuthCode = strings.TrimSpace(s.AuthCode)
	s.AppID = strings.TrimSpace(s.AppID)
	s.UserProductInfo = strings.TrimSpace(s.UserProductInfo)
}

// Validate reports every missing required field in one error.
func (s ConnectSettings) Validate(gateway string) error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"userID", s.UserID},
		{"password", s.Password},
		{"brokerID", s.BrokerID},
		{"tdAddress", s.TdAddress},
		{"mdAddress", s.MdAddress},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errs.New(gateway, errs.CodeConfig,
		errs.WithMessage(fmt.Sprintf("connect settings missing %s", strings.Join(missing, ", "))),
		errs.WithCanonicalCode(errs.CanonicalMissingCredentials))
}

// RequiresAuth reports whether the trading session authenticates before login.
func (s ConnectSettings) RequiresAuth() bool {
	return s.AuthCode != ""
}
