package annotate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reaction is one emoji reaction attached to a message.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// ReplyRef points at the message this one replies to, with the quoted text.
type ReplyRef struct {
	Ref  string `json:"ref"`
	Body string `json:"body"`
}

// Sender accepts both export formats: a bare phone string or an object with a
// "phone" field.
type Sender struct {
	Phone string
}

func (s *Sender) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		s.Phone = str
		return nil
	}
	var obj struct {
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		s.Phone = obj.Phone
		return nil
	}
	// Unknown sender shapes degrade to an empty sender id.
	s.Phone = ""
	return nil
}

func (s Sender) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Phone)
}

// Message is one immutable chat-export message. The core never mutates these.
type Message struct {
	MessageID    string     `json:"messageId"`
	SerialNumber int        `json:"serialNumber"`
	Body         string     `json:"body"`
	Datetime     string     `json:"datetime"`
	Sender       Sender     `json:"sender"`
	Reactions    []Reaction `json:"reactions,omitempty"`
	ReplyTo      *ReplyRef  `json:"replyTo,omitempty"`
}

// ChatExport is the top-level shape of one exported chat JSON file.
type ChatExport struct {
	Messages []Message `json:"messages"`
}

// LoadChatExport reads and decodes one chat export file. Unlike annotation
// failures, an unreadable or unparsable input file is fatal to the run.
func LoadChatExport(path string) (ChatExport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ChatExport{}, fmt.Errorf("read chat export: %w", err)
	}
	var export ChatExport
	if err := json.Unmarshal(b, &export); err != nil {
		return ChatExport{}, fmt.Errorf("parse chat export %s: %w", path, err)
	}
	return export, nil
}

// ListInputFiles resolves an input path to the chat export files to process.
// A file is returned as-is; a directory yields its *.json entries in sorted
// order, skipping generated sentiment outputs.
func ListInputFiles(inputPath string) ([]string, error) {
	fi, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !fi.IsDir() {
		return []string{inputPath}, nil
	}

	entries, err := os.ReadDir(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.ToLower(filepath.Ext(name)) != ".json" {
			continue
		}
		if strings.HasSuffix(name, ".sentiment.json") || strings.HasSuffix(name, "_sentiment.json") {
			continue
		}
		files = append(files, filepath.Join(inputPath, name))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, errors.New("no chat export .json files found")
	}
	return files, nil
}
