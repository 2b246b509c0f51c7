package link

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/nao1215/freezedry/internal/dom"
	"github.com/nao1215/freezedry/internal/liveview"
)

// attributeRule describes one URL-bearing attribute.
type attributeRule struct {
	// selector is an XPath expression selecting the elements to inspect.
	selector string
	// attribute is the attribute holding the URL(s).
	attribute string
	// tokenize splits the attribute value into URLs.
	tokenize liveview.Tokenizer
	// match optionally narrows the selected elements further.
	match func(n *html.Node) bool
	// base returns the URL relative references resolve against.
	base func(n *html.Node, docBase string) string
	// classify returns whether the link is a subresource and its category.
	classify func(n *html.Node) (bool, Category)
}

func fixed(embedded bool, c Category) func(*html.Node) (bool, Category) {
	return func(*html.Node) (bool, Category) { return embedded, c }
}

func documentBase(_ *html.Node, docBase string) string {
	return docBase
}

// codebaseBase resolves object and applet references against their
// codebase attribute when one is present.
func codebaseBase(n *html.Node, docBase string) string {
	codebase, ok := dom.Attr(n, "codebase")
	if !ok || strings.TrimSpace(codebase) == "" {
		return docBase
	}
	if resolved, ok := Resolve(docBase, codebase); ok {
		return resolved
	}
	return docBase
}

// classifyLinkElement decides the category of <link href> from rel and as.
func classifyLinkElement(n *html.Node) (bool, Category) {
	for _, rel := range strings.Fields(strings.ToLower(dom.GetAttr(n, "rel"))) {
		switch rel {
		case "stylesheet":
			return true, CategoryStyle
		case "icon", "apple-touch-icon", "apple-touch-icon-precomposed", "mask-icon":
			return true, CategoryImage
		case "preload":
			switch as := strings.ToLower(strings.TrimSpace(dom.GetAttr(n, "as"))); as {
			case "style":
				return true, CategoryStyle
			case "script":
				return true, CategoryScript
			case "image":
				return true, CategoryImage
			case "font":
				return true, CategoryFont
			case "audio":
				return true, CategoryAudio
			case "video":
				return true, CategoryVideo
			case "track":
				return true, CategoryTrack
			}
		case "modulepreload":
			return true, CategoryScript
		}
	}
	return false, CategoryNone
}

// classifySource takes the category of <source src> from its media parent.
func classifySource(n *html.Node) (bool, Category) {
	switch {
	case dom.IsElement(n.Parent, "audio"):
		return true, CategoryAudio
	case dom.IsElement(n.Parent, "video"):
		return true, CategoryVideo
	default:
		return true, CategoryImage
	}
}

func isRefresh(n *html.Node) bool {
	return strings.EqualFold(strings.TrimSpace(dom.GetAttr(n, "http-equiv")), "refresh")
}

// attributeRules lists every attribute that may contain URLs.
var attributeRules = []attributeRule{
	{selector: "//*[@itemtype]", attribute: "itemtype", tokenize: TokenizeSpaceList, classify: fixed(false, CategoryNone)},
	{selector: "//a[@href]", attribute: "href", classify: fixed(false, CategoryNone)},
	{selector: "//a[@ping]", attribute: "ping", tokenize: TokenizeSpaceList, classify: fixed(false, CategoryNone)},
	{selector: "//area[@href]", attribute: "href", classify: fixed(false, CategoryNone)},
	{selector: "//area[@ping]", attribute: "ping", tokenize: TokenizeSpaceList, classify: fixed(false, CategoryNone)},
	{selector: "//applet[@codebase]", attribute: "codebase", classify: fixed(false, CategoryNone)},
	{selector: "//applet[@archive]", attribute: "archive", tokenize: TokenizeCommaList, base: codebaseBase, classify: fixed(false, CategoryNone)},
	{selector: "//audio[@src]", attribute: "src", classify: fixed(true, CategoryAudio)},
	{selector: "//blockquote[@cite]", attribute: "cite", classify: fixed(false, CategoryNone)},
	{selector: "//body[@background]", attribute: "background", classify: fixed(true, CategoryImage)},
	{selector: "//button[@formaction]", attribute: "formaction", classify: fixed(false, CategoryNone)},
	{selector: "//del[@cite]", attribute: "cite", classify: fixed(false, CategoryNone)},
	{selector: "//embed[@src]", attribute: "src", classify: fixed(true, CategoryEmbed)},
	{selector: "//form[@action]", attribute: "action", classify: fixed(false, CategoryNone)},
	{selector: "//frame[@src]", attribute: "src", classify: fixed(true, CategoryDocument)},
	{selector: "//frame[@longdesc]", attribute: "longdesc", classify: fixed(false, CategoryNone)},
	{selector: "//iframe[@src]", attribute: "src", classify: fixed(true, CategoryDocument)},
	{selector: "//iframe[@longdesc]", attribute: "longdesc", classify: fixed(false, CategoryNone)},
	{selector: "//img[@src]", attribute: "src", classify: fixed(true, CategoryImage)},
	{selector: "//img[@srcset]", attribute: "srcset", tokenize: TokenizeSrcset, classify: fixed(true, CategoryImage)},
	{selector: "//img[@longdesc]", attribute: "longdesc", classify: fixed(false, CategoryNone)},
	{selector: "//input[@src]", attribute: "src", classify: fixed(true, CategoryImage)},
	{selector: "//input[@formaction]", attribute: "formaction", classify: fixed(false, CategoryNone)},
	{selector: "//ins[@cite]", attribute: "cite", classify: fixed(false, CategoryNone)},
	{selector: "//link[@href]", attribute: "href", classify: classifyLinkElement},
	{selector: "//meta[@content]", attribute: "content", tokenize: TokenizeRefresh, match: isRefresh, classify: fixed(false, CategoryDocument)},
	{selector: "//object[@codebase]", attribute: "codebase", classify: fixed(false, CategoryNone)},
	{selector: "//object[@data]", attribute: "data", base: codebaseBase, classify: fixed(true, CategoryObject)},
	{selector: "//object[@archive]", attribute: "archive", tokenize: TokenizeSpaceList, base: codebaseBase, classify: fixed(false, CategoryNone)},
	{selector: "//q[@cite]", attribute: "cite", classify: fixed(false, CategoryNone)},
	{selector: "//script[@src]", attribute: "src", classify: fixed(true, CategoryScript)},
	{selector: "//source[@src]", attribute: "src", classify: classifySource},
	{selector: "//source[@srcset]", attribute: "srcset", tokenize: TokenizeSrcset, classify: fixed(true, CategoryImage)},
	{selector: "//table[@background]", attribute: "background", classify: fixed(true, CategoryImage)},
	{selector: "//td[@background]", attribute: "background", classify: fixed(true, CategoryImage)},
	{selector: "//th[@background]", attribute: "background", classify: fixed(true, CategoryImage)},
	{selector: "//track[@src]", attribute: "src", classify: fixed(true, CategoryTrack)},
	{selector: "//video[@src]", attribute: "src", classify: fixed(true, CategoryVideo)},
	{selector: "//video[@poster]", attribute: "poster", classify: fixed(true, CategoryImage)},
}

// AttributeView returns a live view over the value of attribute key of n.
// The view reads the attribute afresh on every access; a removed attribute
// reads as empty.
func AttributeView(n *html.Node, key string, tokenize liveview.Tokenizer) *liveview.View {
	return liveview.New(tokenize,
		func() string { return dom.GetAttr(n, key) },
		func(v string) { dom.SetAttr(n, key, v) },
	)
}

// TextView returns a live view over the text content of n, as used for
// <style> elements.
func TextView(n *html.Node, tokenize liveview.Tokenizer) *liveview.View {
	return liveview.New(tokenize,
		func() string { return dom.TextContent(n) },
		func(v string) { dom.SetTextContent(n, v) },
	)
}

// Attributes returns a link for every URL in the URL-bearing attributes of
// doc, in rule order and then document order.
func Attributes(doc *html.Node, docBase string) []*Link {
	var links []*Link
	for _, rule := range attributeRules {
		nodes, err := htmlquery.QueryAll(doc, rule.selector)
		if err != nil {
			continue
		}
		tokenize := rule.tokenize
		if tokenize == nil {
			tokenize = TokenizeWhole
		}
		baseOf := rule.base
		if baseOf == nil {
			baseOf = documentBase
		}
		for _, n := range nodes {
			if n.Namespace != "" {
				continue
			}
			if rule.match != nil && !rule.match(n) {
				continue
			}
			embedded, category := rule.classify(n)
			base := baseOf(n, docBase)
			view := AttributeView(n, rule.attribute, tokenize)
			for _, tok := range view.Tokens() {
				links = append(links, New(tok, base, embedded, category, Provenance{Node: n, Attribute: rule.attribute}))
			}
		}
	}
	return links
}

// Styles returns the links in every style attribute and <style> element of
// doc. They are reparented onto the owning element.
func Styles(doc *html.Node, docBase string) []*Link {
	var links []*Link
	styleAttrs, err := htmlquery.QueryAll(doc, "//*[@style]")
	if err == nil {
		for _, n := range styleAttrs {
			view := AttributeView(n, "style", TokenizeStylesheet)
			for _, l := range Stylesheet(view, docBase) {
				from := l.From()
				links = append(links, Reparent(l, Provenance{Node: n, Attribute: "style", Start: from.Start, End: from.End}))
			}
		}
	}
	styleElems, err := htmlquery.QueryAll(doc, "//style")
	if err == nil {
		for _, n := range styleElems {
			view := TextView(n, TokenizeStylesheet)
			for _, l := range Stylesheet(view, docBase) {
				from := l.From()
				links = append(links, Reparent(l, Provenance{Node: n, Start: from.Start, End: from.End}))
			}
		}
	}
	return links
}

// Document returns every link of doc: attribute links followed by style
// links.
func Document(doc *html.Node, docBase string) []*Link {
	return append(Attributes(doc, docBase), Styles(doc, docBase)...)
}

// DocumentBase returns the base URL of doc: the first <base href> resolved
// against docURL, or docURL itself.
func DocumentBase(doc *html.Node, docURL string) string {
	base := htmlquery.FindOne(doc, "//base[@href]")
	if base == nil {
		return docURL
	}
	if resolved, ok := Resolve(docURL, dom.GetAttr(base, "href")); ok {
		return resolved
	}
	return docURL
}
