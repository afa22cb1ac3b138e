package mockserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// Responder produces the reply of a character to a player message. The
// reply may carry behavior tags between words:
//
//	[gesture:wave] Hello [action:point:door] the exit is there [expression:calm:happy:calm]
//
// Each tag is streamed at its position in the reply. An error
// is reported to the client as an exception after the start frame.
type Responder func(ctx context.Context, character smartnpc.CharacterInfo, message string) (string, error)

// EchoResponder greets with a gesture and repeats the message.
func EchoResponder(_ context.Context, character smartnpc.CharacterInfo, message string) (string, error) {
	return fmt.Sprintf("[gesture:nod] %s heard you say: %s", character.Name, message), nil
}

// token is a word or a behavior of a scripted reply.
type token struct {
	word     string
	behavior *smartnpc.RawBehavior
}

// tokenize splits a reply into words and behavior tags. An unterminated
// "[" is plain text.
func tokenize(reply string) []token {
	var tokens []token
	words := func(s string) {
		for _, w := range strings.Fields(s) {
			tokens = append(tokens, token{word: w})
		}
	}
	for {
		open := strings.IndexByte(reply, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(reply[open:], ']')
		if end < 0 {
			break
		}
		words(reply[:open])
		parts := strings.Split(reply[open+1:open+end], ":")
		if parts[0] != "" {
			tokens = append(tokens, token{behavior: &smartnpc.RawBehavior{
				Type: strings.TrimSpace(parts[0]),
				Args: parts[1:],
			}})
		}
		reply = reply[open+end+1:]
	}
	words(reply)
	return tokens
}

// plainText joins the words of tokens.
func plainText(tokens []token) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.behavior != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.word)
	}
	return b.String()
}
