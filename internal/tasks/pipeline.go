package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/models"
)

// NoDataWarning prefixes the warning of an artifact produced from empty input.
const NoDataWarning = "NO_DATA_WARNING: "

var llmParams = []config.ParamSpec{
	{Key: "llm.type", Type: config.TypeString, Default: "ollama", Enum: []string{"ollama", "openai"}},
	{Key: "llm.model", Type: config.TypeString, Default: "llama3"},
	{Key: "llm.base_url", Type: config.TypeString},
	{Key: "llm.temperature", Type: config.TypeFloat, Min: config.Bound(0), Max: config.Bound(2)},
}

func builtinTypes() []Type {
	return []Type{
		{
			Name:        "noop",
			Description: "Produces a marker artifact; used for wiring and tests",
			New:         func() Task { return TaskFunc(runNoop) },
		},
		{
			Name:        "feed_collection",
			Description: "Collects the configured feeds",
			Schema: config.TypeSchema{Params: []config.ParamSpec{
				{Key: "feeds", Type: config.TypeList, Default: []any{}},
				{Key: "max_age_hours", Type: config.TypeInt, Default: 24, Min: config.Bound(1)},
			}},
			New: func() Task { return TaskFunc(runFeedCollection) },
		},
		{
			Name:        "topic_clustering",
			Description: "Groups collected feed items into topics",
			Schema: config.TypeSchema{Params: []config.ParamSpec{
				{Key: "min_cluster_size", Type: config.TypeInt, Default: 2, Min: config.Bound(1)},
			}},
			New: func() Task { return TaskFunc(runClustering) },
		},
		{
			Name:        "topic_title_generation",
			Description: "Gives every topic a short descriptive title",
			Schema: config.TypeSchema{Params: append([]config.ParamSpec{
				{Key: "max_title_words", Type: config.TypeInt, Default: 10, Min: config.Bound(1)},
				{Key: "max_summary_length", Type: config.TypeInt, Default: 500, Min: config.Bound(1)},
			}, llmParams...)},
			New: func() Task { return TaskFunc(runTopicTitles) },
		},
		{
			Name:        "topic_selection",
			Description: "Selects the topics worth briefing",
			Schema: config.TypeSchema{Params: append([]config.ParamSpec{
				{Key: "max_topics", Type: config.TypeInt, Default: 5, Min: config.Bound(1)},
			}, llmParams...)},
			New: func() Task { return TaskFunc(runTopicSelection) },
		},
		{
			Name:        "content_fetching",
			Description: "Fetches article content for selected topics",
			Schema: config.TypeSchema{Params: []config.ParamSpec{
				{Key: "max_articles", Type: config.TypeInt, Default: 10, Min: config.Bound(1)},
				{Key: "request_timeout", Type: config.TypeDuration, Default: "10s"},
			}},
			New: func() Task { return TaskFunc(runContentFetching) },
		},
		{
			Name:        "article_summarization",
			Description: "Summarizes fetched articles",
			Schema: config.TypeSchema{Params: append([]config.ParamSpec{
				{Key: "max_words", Type: config.TypeInt, Default: 150, Min: config.Bound(10)},
			}, llmParams...)},
			New: func() Task { return TaskFunc(runArticleSummarization) },
		},
		{
			Name:        "topic_summarization",
			Description: "Summarizes each topic from its article summaries",
			Schema: config.TypeSchema{Params: append([]config.ParamSpec{
				{Key: "max_words", Type: config.TypeInt, Default: 300, Min: config.Bound(10)},
			}, llmParams...)},
			New: func() Task { return TaskFunc(runTopicSummarization) },
		},
		{
			Name:        "briefing_render",
			Description: "Renders the briefing Markdown to HTML",
			Schema: config.TypeSchema{Params: []config.ParamSpec{
				{Key: "title", Type: config.TypeString, Default: "News Briefing"},
				{Key: "output_path", Type: config.TypeString},
			}},
			New: func() Task { return TaskFunc(runRender) },
		},
	}
}

// predecessorNames returns dependency names sorted, so output is deterministic.
func predecessorNames(in Input) []string {
	names := make([]string, 0, len(in.Predecessors))
	for name := range in.Predecessors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runNoop(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputs := make([]any, 0, len(in.Predecessors))
	for _, name := range predecessorNames(in) {
		inputs = append(inputs, name)
	}
	return models.Artifact{"task": in.TaskName, "inputs": inputs}, nil
}

func runFeedCollection(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, _ := in.Params.Get("feeds")
	list, _ := raw.([]any)
	feeds := make([]any, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case string:
			feeds = append(feeds, map[string]any{"name": v, "url": v})
		case map[string]any:
			url, _ := v["url"].(string)
			if url == "" {
				return nil, fmt.Errorf("feed %d has no url", i)
			}
			name, _ := v["name"].(string)
			if name == "" {
				name = url
			}
			feeds = append(feeds, map[string]any{"name": name, "url": url})
		default:
			return nil, fmt.Errorf("feed %d: unsupported entry %T", i, item)
		}
	}

	out := models.Artifact{
		"feeds":         feeds,
		"feed_count":    len(feeds),
		"max_age_hours": in.Params.Int("max_age_hours", 24),
	}
	if len(feeds) == 0 {
		out["warning"] = NoDataWarning + "no feeds configured"
	}
	return out, nil
}

func runClustering(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := in.Params.Int("min_cluster_size", 2)
	feeds := Collect(in, predecessorNames(in), "feeds")

	topics := make([]any, 0, (len(feeds)+size-1)/size)
	for start := 0; start < len(feeds); start += size {
		end := start + size
		if end > len(feeds) {
			end = len(feeds)
		}
		members := make([]any, 0, end-start)
		for _, f := range feeds[start:end] {
			members = append(members, feedName(f))
		}
		topics = append(topics, map[string]any{
			"topic_id": len(topics) + 1,
			"members":  members,
		})
	}
	return models.Artifact{"topics": topics, "topic_count": len(topics)}, nil
}

// runTopicTitles titles each topic from its member headlines.
func runTopicTitles(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxWords := in.Params.Int("max_title_words", 10)
	maxLength := in.Params.Int("max_summary_length", 500)
	topics := Collect(in, predecessorNames(in), "topics")
	if len(topics) == 0 {
		return models.Artifact{
			"topics":           []any{},
			"titles_generated": 0,
			"warning":          NoDataWarning + "no topics to title",
		}, nil
	}

	titled := make([]any, 0, len(topics))
	for _, t := range topics {
		topic, ok := t.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unsupported topic entry %T", t)
		}
		members, _ := topic["members"].([]any)
		headlines := make([]string, 0, len(members))
		for _, m := range members {
			headlines = append(headlines, fmt.Sprint(m))
		}
		text := []rune(strings.Join(headlines, " / "))
		if len(text) > maxLength {
			text = text[:maxLength]
		}

		out := models.CloneMap(topic)
		out["title"] = truncateWords(string(text), maxWords)
		titled = append(titled, out)
	}
	return models.Artifact{
		"topics":           titled,
		"titles_generated": len(titled),
		"model":            in.Params.String("llm.model", ""),
	}, nil
}

func runTopicSelection(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	max := in.Params.Int("max_topics", 5)
	topics := Collect(in, predecessorNames(in), "topics")
	if len(topics) > max {
		topics = topics[:max]
	}
	return models.Artifact{
		"topics":         topics,
		"selected_count": len(topics),
		"model":          in.Params.String("llm.model", ""),
	}, nil
}

func runContentFetching(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	max := in.Params.Int("max_articles", 10)
	var articles []any
	for _, t := range Collect(in, predecessorNames(in), "topics") {
		topic, _ := t.(map[string]any)
		members, _ := topic["members"].([]any)
		for _, m := range members {
			if len(articles) >= max {
				break
			}
			article := map[string]any{
				"topic_id": topic["topic_id"],
				"source":   m,
			}
			if title, ok := topic["title"]; ok {
				article["title"] = title
			}
			articles = append(articles, article)
		}
	}
	return models.Artifact{
		"articles":        articles,
		"article_count":   len(articles),
		"request_timeout": in.Params.Duration("request_timeout", 0).String(),
	}, nil
}

func runArticleSummarization(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxWords := in.Params.Int("max_words", 150)
	var summaries []any
	for _, a := range Collect(in, predecessorNames(in), "articles") {
		article, _ := a.(map[string]any)
		summary := map[string]any{
			"topic_id": article["topic_id"],
			"source":   article["source"],
			"summary":  truncateWords(fmt.Sprintf("Summary of %v.", article["source"]), maxWords),
		}
		if title, ok := article["title"]; ok {
			summary["title"] = title
		}
		summaries = append(summaries, summary)
	}
	return models.Artifact{"summaries": summaries}, nil
}

func runTopicSummarization(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxWords := in.Params.Int("max_words", 300)
	byTopic := make(map[string][]string)
	titles := make(map[string]string)
	var order []string
	for _, s := range Collect(in, predecessorNames(in), "summaries") {
		summary, _ := s.(map[string]any)
		key := fmt.Sprint(summary["topic_id"])
		if _, seen := byTopic[key]; !seen {
			order = append(order, key)
		}
		byTopic[key] = append(byTopic[key], fmt.Sprint(summary["summary"]))
		if title, ok := summary["title"].(string); ok && titles[key] == "" {
			titles[key] = title
		}
	}

	var md strings.Builder
	for _, key := range order {
		if title := titles[key]; title != "" {
			fmt.Fprintf(&md, "## %s\n\n", title)
		} else {
			fmt.Fprintf(&md, "## Topic %s\n\n", key)
		}
		md.WriteString(truncateWords(strings.Join(byTopic[key], " "), maxWords))
		md.WriteString("\n\n")
	}
	return models.Artifact{"markdown": md.String(), "topic_count": len(order)}, nil
}

func feedName(f any) any {
	if m, ok := f.(map[string]any); ok {
		if name, ok := m["name"]; ok {
			return name
		}
	}
	return f
}

func truncateWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ") + "…"
}
