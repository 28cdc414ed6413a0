package conversation

import (
	"context"
	"strings"
)

type followUpTopic struct {
	keywords  []string
	questions []string
}

// First match wins, so order matters.
var followUpTopics = []followUpTopic{
	{
		keywords: []string{"segment"},
		questions: []string{
			"Can you compare the profit margins across different segments?",
			"What factors are driving the performance in this segment?",
			"How does the discount strategy vary across segments?",
		},
	},
	{
		keywords: []string{"country"},
		questions: []string{
			"Which products perform best in this country?",
			"How does the profit margin in this country compare to others?",
			"Are there seasonal trends specific to this country?",
		},
	},
	{
		keywords: []string{"product"},
		questions: []string{
			"Which segment has the highest sales for this product?",
			"How does the pricing strategy affect this product's performance?",
			"Is this product's performance consistent across different countries?",
		},
	},
	{
		keywords: []string{"discount"},
		questions: []string{
			"Which segment is most sensitive to discounts?",
			"What is the optimal discount level for maximizing profit?",
			"How do discount strategies vary across different products?",
		},
	},
	{
		keywords: []string{"trend", "time"},
		questions: []string{
			"Are there any seasonal patterns in the data?",
			"Which segment shows the most growth over time?",
			"How stable are profit margins throughout the year?",
		},
	},
}

var defaultFollowUps = []string{
	"What are the top factors driving profitability in this dataset?",
	"Can you identify any anomalies or outliers in the data?",
	"How do discount strategies impact overall profitability?",
	"Which segments show the most potential for improvement?",
	"What insights can you provide about the relationship between sales volume and profit margin?",
}

// SuggestFollowUps returns up to n follow-up questions keyed off the most
// recent user message.
func (s *Store) SuggestFollowUps(ctx context.Context, id string, n int) ([]string, error) {
	c, err := s.readConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return suggestFor(c.Messages, n), nil
}

func suggestFor(msgs []Message, n int) []string {
	if n <= 0 {
		return []string{}
	}
	last := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			last = strings.ToLower(msgs[i].Content)
			break
		}
	}
	if last == "" {
		return []string{}
	}

	questions := defaultFollowUps
topics:
	for _, t := range followUpTopics {
		for _, kw := range t.keywords {
			if strings.Contains(last, kw) {
				questions = t.questions
				break topics
			}
		}
	}
	if n > len(questions) {
		n = len(questions)
	}
	return append([]string(nil), questions[:n]...)
}
