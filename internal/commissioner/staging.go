package commissioner

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// stageChunkSize is how many raw bytes go into one echo-append command.
// Hex doubles it on the wire, which keeps every chunk command far below the
// terminal column budget.
const stageChunkSize = 40

// scratchPath returns a fresh remote path for a staged artifact. Unique per
// call so retried or concurrent setups never collide.
func scratchPath(kind string) string {
	return fmt.Sprintf("/tmp/commissioner.%s.%s", kind, uuid.NewString())
}

// stageBytes pushes a binary payload to a remote file as hex chunks,
// appended one echo command at a time.
func (c *Commissioner) stageBytes(payload []byte, remotePath string) error {
	for off := 0; off < len(payload); off += stageChunkSize {
		end := off + stageChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := bytesToHex(payload[off:end])
		if _, err := c.session.Command(fmt.Sprintf(`echo %s >> "%s"`, chunk, remotePath)); err != nil {
			return fmt.Errorf("stage chunk at %d: %w", off, err)
		}
	}
	return nil
}

// stageBlob pushes a whole payload in one base64-decode-redirect command.
// Only suitable for payloads that fit the column budget after encoding.
func (c *Commissioner) stageBlob(payload []byte, remotePath string) error {
	b64 := base64.StdEncoding.EncodeToString(payload)
	if _, err := c.session.Command(fmt.Sprintf(`echo "%s" | base64 -d - > "%s"`, b64, remotePath)); err != nil {
		return fmt.Errorf("stage blob: %w", err)
	}
	return nil
}

// stageLocalFile reads a local file and stages it remotely.
func (c *Commissioner) stageLocalFile(localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	return c.stageBlob(data, remotePath)
}

// stageConfig writes the init payload to a fresh remote path and returns
// that path. In CCM mode the credential files are staged first and the
// payload references their remote locations.
func (c *Commissioner) stageConfig(cfg Config) (string, error) {
	payload := map[string]any{
		"EnableCcm":              cfg.CCM,
		"Id":                     cfg.ID,
		"PSKc":                   bytesToHex(cfg.PSKc),
		"DomainName":             cfg.DomainName,
		"EnableDtlsDebugLogging": cfg.DTLSDebugLogging,
		"LogLevel":               cfg.LogLevel,
		"KeepAliveInterval":      cfg.KeepAliveInterval,
		"MaxConnectionNum":       cfg.MaxConnectionNum,
		"LogFile":                cfg.LogFile,
	}

	if cfg.CCM {
		if cfg.PrivateKeyFile != "" {
			path := scratchPath("private_key")
			if err := c.stageLocalFile(cfg.PrivateKeyFile, path); err != nil {
				return "", err
			}
			payload["PrivateKeyFile"] = path
		}
		if cfg.CertificateFile != "" {
			path := scratchPath("cert")
			if err := c.stageLocalFile(cfg.CertificateFile, path); err != nil {
				return "", err
			}
			payload["CertificateFile"] = path
		}
		if cfg.TrustAnchorFile != "" {
			path := scratchPath("trust_anchor")
			if err := c.stageLocalFile(cfg.TrustAnchorFile, path); err != nil {
				return "", err
			}
			payload["TrustAnchorFile"] = path
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal init payload: %w", err)
	}
	configPath := scratchPath("json")
	if _, err := c.session.Command(fmt.Sprintf(`echo '%s' >> '%s'`, data, configPath)); err != nil {
		return "", fmt.Errorf("stage init payload: %w", err)
	}
	return configPath, nil
}
