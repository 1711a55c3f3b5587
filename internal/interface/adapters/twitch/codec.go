package twitchadapter

import (
	"bytes"
	"fmt"
	"iter"
	"strings"

	"berryBot/internal/domain"
)

const (
	keepaliveMarker = "PING"
	chatMarker      = "PRIVMSG"
)

type FrameKind int

const (
	FrameKeepalive FrameKind = iota + 1
	FrameChat
)

// Frame is one recognized protocol line.
type Frame struct {
	Kind FrameKind

	// Payload is what follows the keepalive marker, echoed back in the PONG.
	Payload string

	// Chat frames. Tags is the raw IRCv3 tag section without the leading
	// '@', Sender the prefix without its leading ':'.
	Tags   string
	Sender string
	Target string
	Body   string
}

// MaxLineLength bounds one protocol line: 8191 bytes of tags plus a 512
// byte message.
const MaxLineLength = 8192 + 512

// Decoder splits a byte stream into frames. Bytes after the last line
// terminator stay buffered until the next Feed completes them, up to
// MaxLineLength.
type Decoder struct {
	buf []byte
	// discarding is set while the rest of an oversized line is skipped.
	discarding bool
}

// Feed appends p to the buffer. An incomplete line that grows past
// MaxLineLength is dropped along with the rest of it up to the next
// terminator; the drop is reported as domain.ErrMalformedFrame.
func (d *Decoder) Feed(p []byte) error {
	if d.discarding {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			return nil
		}
		p = p[idx+1:]
		d.discarding = false
	}
	d.buf = append(d.buf, p...)

	start := bytes.LastIndexByte(d.buf, '\n') + 1
	pending := len(d.buf) - start
	if pending <= MaxLineLength {
		return nil
	}
	d.buf = d.buf[:start]
	d.discarding = true
	return fmt.Errorf("%w: line exceeds %d bytes", domain.ErrMalformedFrame, MaxLineLength)
}

// Frames yields the frames of every complete buffered line, consuming them as
// it goes. Lines that are neither keepalives nor chat are dropped. Stopping
// the iteration early leaves the remaining lines for the next call.
func (d *Decoder) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			idx := bytes.IndexByte(d.buf, '\n')
			if idx < 0 {
				return
			}
			if idx > MaxLineLength {
				d.buf = d.buf[idx+1:]
				if !yield(Frame{}, fmt.Errorf("%w: line exceeds %d bytes", domain.ErrMalformedFrame, MaxLineLength)) {
					return
				}
				continue
			}
			line := strings.TrimSuffix(string(d.buf[:idx]), "\r")
			d.buf = d.buf[idx+1:]

			frame, ok, err := decodeLine(line)
			if !ok && err == nil {
				continue
			}
			if !yield(frame, err) {
				return
			}
		}
	}
}

func decodeLine(line string) (Frame, bool, error) {
	if line == "" {
		return Frame{}, false, nil
	}
	if strings.HasPrefix(line, keepaliveMarker) {
		payload := strings.TrimSpace(strings.TrimPrefix(line, keepaliveMarker))
		return Frame{Kind: FrameKeepalive, Payload: payload}, true, nil
	}
	if !strings.Contains(line, chatMarker) {
		return Frame{}, false, nil
	}

	var tags string
	rest := line
	if strings.HasPrefix(rest, "@") {
		tagPart, after, _ := strings.Cut(rest, " ")
		tags = strings.TrimPrefix(tagPart, "@")
		rest = after
	}

	parts := strings.Split(rest, " ")
	if len(parts) < 4 {
		return Frame{}, false, fmt.Errorf("%w: %q", domain.ErrMalformedFrame, line)
	}

	body := strings.TrimPrefix(strings.Join(parts[3:], " "), ":")
	return Frame{
		Kind:   FrameChat,
		Tags:   tags,
		Sender: strings.TrimPrefix(parts[0], ":"),
		Target: parts[2],
		Body:   strings.TrimSpace(body),
	}, true, nil
}

// ChatMessageFromFrame builds the chat message carried by a chat frame. The
// display-name and user-id tags win over the nick in the prefix; the frame
// target wins over fallbackChannel.
func ChatMessageFromFrame(f Frame, fallbackChannel string) (domain.ChatMessage, error) {
	if f.Kind != FrameChat {
		return domain.ChatMessage{}, fmt.Errorf("%w: not a chat frame", domain.ErrMalformedFrame)
	}

	nick, _, _ := strings.Cut(f.Sender, "!")
	tags := parseTags(f.Tags)

	username := nick
	if v := tags["display-name"]; v != "" {
		username = v
	}

	channel := domain.NormalizeChannel(f.Target)
	if channel == "" {
		channel = domain.NormalizeChannel(fallbackChannel)
	}

	msg := domain.ChatMessage{
		Channel:  channel,
		Username: username,
		UserID:   tags["user-id"],
		Text:     f.Body,
	}
	if msg.Channel == "" || msg.Text == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty channel or body", domain.ErrMalformedFrame)
	}
	return msg, nil
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	if raw == "" {
		return tags
	}
	for _, pair := range strings.Split(raw, ";") {
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		tags[key] = tagValueReplacer.Replace(value)
	}
	return tags
}

var tagValueReplacer = strings.NewReplacer(
	`\:`, ";",
	`\s`, " ",
	`\\`, `\`,
	`\r`, "\r",
	`\n`, "\n",
)
