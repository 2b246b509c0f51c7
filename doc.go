// Package freezedry turns a web page into one self-contained HTML string.
//
// Every subresource a document embeds (images, stylesheets, fonts, media,
// nested frames) is fetched, dried and inlined as a data: URL, children
// before parents, so the result loads without network access. Scripts and
// event handlers are removed and the remaining links are made absolute.
//
//	doc, _ := html.Parse(r)
//	out, err := freezedry.Freeze(ctx, doc,
//		freezedry.WithDocumentURL("https://example.com/"),
//		freezedry.WithTimeout(30*time.Second),
//	)
//
// A timeout or cancelled context is not an error: whatever was fetched by
// then is inlined and the rest keeps its absolute URL.
package freezedry
