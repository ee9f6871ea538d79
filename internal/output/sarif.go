package output

import (
	"bytes"
	"fmt"
)

// SARIFFormatter writes the SARIF 2.1.0 log.
type SARIFFormatter struct{}

func (f *SARIFFormatter) Format(result *AnalysisOutput) ([]byte, error) {
	if result == nil || result.SARIFLog == nil {
		return nil, fmt.Errorf("sarif formatter: SARIF log is required")
	}
	var buf bytes.Buffer
	if err := result.SARIFLog.PrettyWrite(&buf); err != nil {
		return nil, fmt.Errorf("sarif formatter: %w", err)
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
