package dbconn

import (
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/block/dbserde/pkg/utils"
	"github.com/go-sql-driver/mysql"
)

const (
	customTLSConfigName   = "dbserde_custom"
	verifyCATLSConfigName = "dbserde_verify_ca"
	maxConnLifetime       = time.Minute * 3
)

// NewCustomTLSConfig creates a TLS config for the given mode that trusts
// the certificates in certData.
func NewCustomTLSConfig(certData []byte, tlsMode string) *tls.Config {
	caCertPool := x509.NewCertPool()
	caCertPool.AppendCertsFromPEM(certData)

	switch tlsMode {
	case "DISABLED":
		return nil
	case "VERIFY_CA":
		// Verify the chain against our CA pool, but allow hostname mismatches
		return &tls.Config{
			RootCAs:            caCertPool,
			InsecureSkipVerify: true,
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return errors.New("no certificates provided")
				}
				certs := make([]*x509.Certificate, 0, len(rawCerts))
				for _, rawCert := range rawCerts {
					cert, err := x509.ParseCertificate(rawCert)
					if err != nil {
						return fmt.Errorf("failed to parse certificate: %w", err)
					}
					certs = append(certs, cert)
				}
				intermediates := x509.NewCertPool()
				for _, cert := range certs[1:] {
					intermediates.AddCert(cert)
				}
				if _, err := certs[0].Verify(x509.VerifyOptions{
					Roots:         caCertPool,
					Intermediates: intermediates,
				}); err != nil {
					return fmt.Errorf("certificate verification failed: %w", err)
				}
				return nil
			},
		}
	case "VERIFY_IDENTITY":
		return &tls.Config{
			RootCAs: caCertPool,
		}
	default:
		// PREFERRED and REQUIRED: encryption only
		return &tls.Config{
			RootCAs:            caCertPool,
			InsecureSkipVerify: true,
		}
	}
}

// tlsParam returns the value of the driver's tls parameter for config,
// registering a custom TLS config when a certificate is provided.
func tlsParam(config *DBConfig) (string, error) {
	mode := strings.ToUpper(config.TLSMode)
	if mode == "DISABLED" {
		return "false", nil
	}
	if config.TLSCertificatePath == "" {
		switch mode {
		case "REQUIRED", "VERIFY_CA":
			return "skip-verify", nil
		case "VERIFY_IDENTITY":
			return "true", nil
		default:
			return "preferred", nil
		}
	}
	certData, err := os.ReadFile(config.TLSCertificatePath)
	if err != nil {
		return "", err
	}
	name := customTLSConfigName
	if mode == "VERIFY_CA" {
		name = verifyCATLSConfigName
	}
	if err := mysql.RegisterTLSConfig(name, NewCustomTLSConfig(certData, mode)); err != nil {
		return "", err
	}
	return name, nil
}

// newDSN returns the DSN used to connect to MySQL. It appends the session
// settings the mapper relies on to the input DSN.
func newDSN(dsn string, config *DBConfig) (string, error) {
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", err
	}
	tlsValue, err := tlsParam(config)
	if err != nil {
		return "", err
	}
	ops := []string{
		"tls=" + url.QueryEscape(tlsValue),
		"time_zone=" + url.QueryEscape(`"+00:00"`),
		"innodb_lock_wait_timeout=" + strconv.Itoa(config.InnodbLockWaitTimeout),
		"lock_wait_timeout=" + strconv.Itoa(config.LockWaitTimeout),
		// text columns must arrive as text, not as binary strings
		"charset=utf8mb4",
		"collation=utf8mb4_bin",
		"rejectReadOnly=true",
		"interpolateParams=" + strconv.FormatBool(config.InterpolateParams),
		// the mapper parses temporal columns itself
		"parseTime=false",
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join(ops, "&"), nil
}

// New is similar to sql.Open except we take the inputDSN and
// append additional options to it to standardize the connection.
// It will also ping the connection to ensure it is valid.
func New(inputDSN string, config *DBConfig) (*sql.DB, error) {
	dsn, err := newDSN(inputDSN, config)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		utils.CloseAndLog(db)
		return nil, err
	}
	db.SetMaxOpenConns(config.MaxOpenConnections)
	db.SetConnMaxLifetime(maxConnLifetime)
	return db, nil
}

// DSN builds a DSN from its parts.
func DSN(host, username, password, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = database
	return cfg.FormatDSN()
}
