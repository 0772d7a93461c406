package app

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"quiz-publisher/internal/domain"
)

const introEnglish = `🎯 *Today's Quiz - Day {{.Day}} - {{entity .Topic}} Quiz {{.TopicNumber}}* 🎯

📚 Topic: *{{entity .Topic}}*
🔢 Number of Questions: *{{.Count}}*
🔢 Quiz Number: *{{.GlobalNumber}}*

🕐 Daily quizzes are posted in our Telegram channel at {{schedule "and"}} with *{{.Count}}* questions.

🔗 *Join* : {{escape .Handle}}

🏆 Get ready! The quiz is about to start... 🚀`

const introGujarati = `🎯 *આજની ક્વિઝ - દિવસ {{.Day}} - {{entity .Topic}} ક્વિઝ {{.TopicNumber}}* 🎯

📚 વિષય: *{{entity .Topic}}*
🔢 પ્રશ્નોની સંખ્યા: *{{.Count}}*
🔢 ક્વિઝ નંબર: *{{.GlobalNumber}}*

🕐 અમારી ટેલિગ્રામ ચેનલમાં દરરોજ {{schedule "અને"}} *{{.Count}}* પ્રશ્નોની ક્વિઝ મૂકવામાં આવે છે.

🔗 *જોડાઓ* : {{escape .Handle}}

🏆 તૈયાર થઈ જાઓ! ક્વિઝ શરૂ થવાની છે... 🚀`

var introTemplates = map[string]string{
	"en": introEnglish,
	"gu": introGujarati,
}

// IntroConfig selects the announcement language and the channel facts it mentions.
type IntroConfig struct {
	Language string
	Handle   string
	Schedule []string
}

// IntroData are the per-run values substituted into the announcement.
type IntroData struct {
	Day          int
	Topic        string
	TopicNumber  int
	GlobalNumber int
	Count        int
	Handle       string
}

// IntroRenderer produces the Markdown announcement for the channel and its plain
// text form for the document.
type IntroRenderer struct {
	markdown *template.Template
	plain    *template.Template
	handle   string
}

// markdownEscaper escapes legacy Telegram Markdown outside entities.
var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func NewIntroRenderer(cfg IntroConfig) (*IntroRenderer, error) {
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	text, ok := introTemplates[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported intro language %q", lang)
	}
	handle := cfg.Handle
	if handle == "" {
		handle = domain.DefaultHandle
	}
	schedule := cfg.Schedule
	if len(schedule) == 0 {
		schedule = []string{"1 PM", "9 PM"}
	}

	// Inside a bold entity legacy Markdown has no escapes; only "*" would end it early.
	entity := func(s string) string { return strings.ReplaceAll(s, "*", "") }
	markdown, err := template.New(lang).Funcs(template.FuncMap{
		"entity":   entity,
		"escape":   markdownEscaper.Replace,
		"schedule": scheduleFunc(schedule, func(s string) string { return "*" + entity(s) + "*" }),
	}).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse intro template: %w", err)
	}
	identity := func(s string) string { return s }
	plain, err := template.New(lang).Funcs(template.FuncMap{
		"entity":   identity,
		"escape":   identity,
		"schedule": scheduleFunc(schedule, identity),
	}).Parse(strings.ReplaceAll(text, "*", ""))
	if err != nil {
		return nil, fmt.Errorf("parse plain intro template: %w", err)
	}
	return &IntroRenderer{markdown: markdown, plain: plain, handle: handle}, nil
}

// scheduleFunc joins the posting times as "a, b <conjunction> c".
func scheduleFunc(slots []string, format func(string) string) func(string) string {
	return func(conjunction string) string {
		formatted := make([]string, len(slots))
		for i, slot := range slots {
			formatted[i] = format(slot)
		}
		if len(formatted) == 1 {
			return formatted[0]
		}
		return strings.Join(formatted[:len(formatted)-1], ", ") + " " + conjunction + " " + formatted[len(formatted)-1]
	}
}

func (r *IntroRenderer) Render(data IntroData) (domain.Intro, error) {
	if data.Handle == "" {
		data.Handle = r.handle
	}
	var md, plain bytes.Buffer
	if err := r.markdown.Execute(&md, data); err != nil {
		return domain.Intro{}, err
	}
	if err := r.plain.Execute(&plain, data); err != nil {
		return domain.Intro{}, err
	}
	return domain.Intro{Markdown: md.String(), Plain: plain.String()}, nil
}
