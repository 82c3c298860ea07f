package inspect

import (
	"strconv"

	"github.com/go-ini/ini"
)

// confParams holds the [client] section of a my.cnf style file. A nil
// receiver or a missing key leaves the flag value in place.
type confParams struct {
	host, database, user, tlsMode, tlsCA string
	password                             *string
	port                                 int
}

// apply overwrites the connection flags of cmd with the values from the
// conf file.
func (c *confParams) apply(cmd *InspectCmd) {
	if c == nil {
		return
	}
	if c.host != "" {
		cmd.Host = c.host
		if c.port != 0 {
			cmd.Host = c.host + ":" + strconv.Itoa(c.port)
		}
	}
	if c.database != "" {
		cmd.Database = c.database
	}
	if c.user != "" {
		cmd.Username = c.user
	}
	if c.password != nil {
		cmd.Password = *c.password
	}
	if c.tlsMode != "" {
		cmd.TLSMode = c.tlsMode
	}
	if c.tlsCA != "" {
		cmd.TLSCertificatePath = c.tlsCA
	}
}

// newConfParams attempts to load a confParams struct from a path to an ini file.
func newConfParams(confFilePath string) (*confParams, error) {
	confParams := &confParams{}

	if confFilePath == "" {
		return confParams, nil
	}

	creds, err := ini.Load(confFilePath)
	if err != nil {
		return nil, err
	}

	if creds.HasSection("client") {
		clientSection := creds.Section("client")
		confParams.host = clientSection.Key("host").String()
		confParams.database = clientSection.Key("database").String()
		confParams.user = clientSection.Key("user").String()
		confParams.tlsMode = clientSection.Key("tls-mode").String()
		confParams.tlsCA = clientSection.Key("tls-ca").String()
		confParams.port = clientSection.Key("port").MustInt()

		if clientSection.HasKey("password") {
			pw := clientSection.Key("password").String()
			confParams.password = &pw
		}
	}

	return confParams, nil
}
