package evaluation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// LoadQuestions は1行1問の質問ファイルを読み込む
// 各行の前後の空白は除去し、空行は無視する
func LoadQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrQuestionsNotFound, path)
		}
		return nil, fmt.Errorf("failed to open questions file: %w", err)
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		questions = append(questions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}

	return questions, nil
}

// MarshalReport は評価記録をインデント2のJSON配列に変換する
// 非ASCII文字は \uXXXX 形式にエスケープする
func MarshalReport(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	return escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// WriteReport は評価記録をJSONファイルとして書き出す
// 一時ファイルに書き込んでからリネームする
func WriteReport(path string, records []Record) error {
	data, err := MarshalReport(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}

// Summarize は評価記録を集計する
func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		if r.Failed {
			s.Failures = append(s.Failures, r)
			continue
		}
		s.Successes++
	}
	return s
}

// PrintSummary は集計結果をコンソール向けに出力する
func PrintSummary(w io.Writer, s Summary) error {
	var sb strings.Builder

	sb.WriteString("\n-----------RAG Evaluation Summary----------\n\n")
	fmt.Fprintf(&sb, "Total Questions - %d\n", s.Total)
	fmt.Fprintf(&sb, "Successful Answers - %d\n", s.Successes)
	fmt.Fprintf(&sb, "Failed Answers - %d\n", len(s.Failures))
	sb.WriteString("\nFailures Breakdown-\n\n")
	for _, f := range s.Failures {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", f.Question, f.FailureReason)
	}
	sb.WriteString("--------------------------------------------------------\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// escapeNonASCII は非ASCII文字を JSON の \uXXXX エスケープに置き換える
// BMP外の文字はサロゲートペアで表現する
func escapeNonASCII(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r < utf8.RuneSelf {
			out.WriteByte(data[0])
			data = data[size:]
			continue
		}

		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			fmt.Fprintf(&out, `\u%04x\u%04x`, r1, r2)
		} else {
			fmt.Fprintf(&out, `\u%04x`, r)
		}
		data = data[size:]
	}

	return out.Bytes()
}
