package reporting

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

const (
	DefaultReportDir    = "reports"
	DefaultReportPrefix = "SPEC"

	// MaxFilenameSize keeps report filenames (without extension) below common filesystem limits
	MaxFilenameSize = 240

	junitTimestampFormat = "2006-01-02T15:04:05"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// junitTestSuite is the XML structure of one report file
type junitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Assertions int             `xml:"assertions,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Hostname   string          `xml:"hostname,attr,omitempty"`
	TestCases  []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name       string         `xml:"name,attr"`
	ClassName  string         `xml:"classname,attr"`
	Time       string         `xml:"time,attr"`
	Assertions int            `xml:"assertions,attr"`
	Failures   []junitFailure `xml:"failure"`
	Errors     []junitFailure `xml:"error"`
	Skipped    *junitSkipped  `xml:"skipped"`
}

type junitFailure struct {
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
	Content string `xml:",chardata"`
}

type junitSkipped struct{}

// JUnitSink writes one JUnit XML file per suite into a report directory
type JUnitSink struct {
	dir      string
	prefix   string
	hostname string
	log      log.Logger
	written  []string
}

// NewJUnitSink creates the report directory and, unless keep is set, removes
// report files left over from a previous run.
func NewJUnitSink(dir, prefix string, keep bool, logger log.Logger) (*JUnitSink, error) {
	if dir == "" {
		return nil, errors.New("report directory cannot be empty")
	}
	if prefix == "" {
		prefix = DefaultReportPrefix
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	if !keep {
		stale, err := filepath.Glob(filepath.Join(dir, prefix+"-*.xml"))
		if err != nil {
			return nil, fmt.Errorf("failed to list stale reports: %w", err)
		}
		for _, path := range stale {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove stale report %s: %w", path, err)
			}
		}
		if len(stale) > 0 {
			logger.Debug("Removed stale reports", "dir", dir, "count", len(stale))
		}
	}

	hostname, _ := os.Hostname()

	return &JUnitSink{
		dir:      dir,
		prefix:   prefix,
		hostname: hostname,
		log:      logger,
	}, nil
}

// WriteReport writes the suite to <dir>/<prefix>-<suite name>.xml
func (s *JUnitSink) WriteReport(ctx context.Context, suite *types.Suite) error {
	path := s.pathFor(suite.Name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	if err := s.encode(f, suite); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file %s: %w", path, err)
	}

	s.written = append(s.written, path)
	s.log.Debug("Wrote report", "suite", suite.Name, "path", path)
	return nil
}

// Written returns the paths of all report files written so far
func (s *JUnitSink) Written() []string {
	return s.written
}

// FilenameFor returns the base filename used for a suite name
func (s *JUnitSink) FilenameFor(suiteName string) string {
	base := s.prefix + "-" + unsafeFilenameChars.ReplaceAllString(suiteName, "-")
	if len(base) > MaxFilenameSize {
		base = base[:MaxFilenameSize]
	}
	return base + ".xml"
}

// pathFor never returns the path of an existing file, so suites sharing a
// sanitized name do not overwrite each other.
func (s *JUnitSink) pathFor(suiteName string) string {
	name := s.FilenameFor(suiteName)
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path
	}
	base := name[:len(name)-len(".xml")]
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.xml", base, uuid.New().String()))
}

func (s *JUnitSink) encode(w io.Writer, suite *types.Suite) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(toJUnit(suite, s.hostname)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func toJUnit(suite *types.Suite, hostname string) junitTestSuite {
	out := junitTestSuite{
		Name:      suite.Name,
		Tests:     suite.Tests(),
		Failures:  suite.Failures(),
		Errors:    suite.Errors(),
		Skipped:   suite.Skipped(),
		Time:      formatSeconds(suite.Duration()),
		Timestamp: suite.StartTime.Format(junitTimestampFormat),
		Hostname:  hostname,
		TestCases: make([]junitTestCase, 0, len(suite.Cases)),
	}

	for _, c := range suite.Cases {
		tc := junitTestCase{
			Name:      c.Name,
			ClassName: suite.Name,
			Time:      formatSeconds(c.Duration()),
		}
		for _, f := range c.Failures {
			jf := junitFailure{Type: f.Name(), Message: f.Message(), Content: f.Location()}
			if f.IsFailure() {
				tc.Failures = append(tc.Failures, jf)
			} else {
				tc.Errors = append(tc.Errors, jf)
			}
		}
		if c.Status == types.CaseStatusSkipped {
			tc.Skipped = &junitSkipped{}
		}
		out.TestCases = append(out.TestCases, tc)
	}
	return out
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}
