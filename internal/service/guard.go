package service

import (
	"slices"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/adk-task-harness/internal/harm"
	"github.com/easeaico/adk-task-harness/internal/orchestrator"
)

// Refusal is the reply given in place of a model call when a harmful
// request is aborted.
const Refusal = "I can't help with that request: it was flagged by the harm screen."

// ScreenRequests returns a callback that screens user text before every
// model call. Under PolicyAbort a harmful latest user message is answered
// with Refusal and the model is not called. Otherwise every user text part
// in the request is replaced by its rewrite; the session's events are left
// untouched.
func ScreenRequests(screen *harm.Screen, policy orchestrator.Policy) llmagent.BeforeModelCallback {
	return func(ctx agent.CallbackContext, req *model.LLMRequest) (*model.LLMResponse, error) {
		if req == nil {
			return nil, nil
		}

		if policy == orchestrator.PolicyAbort {
			if _, harmful := screen.DetectTerm(latestUserText(req.Contents)); harmful {
				return &model.LLMResponse{
					Content: genai.NewContentFromText(Refusal, genai.RoleModel),
				}, nil
			}
		}

		req.Contents = redactUserText(screen, req.Contents)
		return nil, nil
	}
}

// latestUserText joins the text parts of the last user content that has any.
// Function responses carry no text and are skipped.
func latestUserText(contents []*genai.Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		c := contents[i]
		if c == nil || c.Role != string(genai.RoleUser) {
			continue
		}
		var texts []string
		for _, p := range c.Parts {
			if p != nil && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, " ")
		}
	}
	return ""
}

// redactUserText returns contents with harmful user text rewritten. Changed
// contents and parts are copies.
func redactUserText(screen *harm.Screen, contents []*genai.Content) []*genai.Content {
	out := slices.Clone(contents)
	for i, c := range out {
		if c == nil || c.Role != string(genai.RoleUser) {
			continue
		}

		var parts []*genai.Part
		for j, p := range c.Parts {
			if p == nil || p.Text == "" {
				continue
			}
			if _, harmful := screen.DetectTerm(p.Text); !harmful {
				continue
			}
			if parts == nil {
				parts = slices.Clone(c.Parts)
			}
			rewritten := *p
			rewritten.Text = screen.Rewrite(p.Text)
			parts[j] = &rewritten
		}

		if parts != nil {
			copied := *c
			copied.Parts = parts
			out[i] = &copied
		}
	}
	return out
}
