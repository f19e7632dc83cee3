package render

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"blueprint/internal/blueprint"
)

// PDFRenderer prints the HTML rendering through headless Chrome.
type PDFRenderer struct {
	html     *HTMLRenderer
	execPath string
}

// NewPDFRenderer uses the Chrome binary at execPath, or the default lookup
// when execPath is empty.
func NewPDFRenderer(execPath string) *PDFRenderer {
	return &PDFRenderer{html: NewHTMLRenderer(), execPath: execPath}
}

func (r *PDFRenderer) Render(ctx context.Context, meta Meta, p blueprint.Payload) (Output, error) {
	htmlOut, err := r.html.Render(ctx, meta, p)
	if err != nil {
		return Output{}, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(htmlOut.Body)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return Output{}, fmt.Errorf("print %s to pdf: %w", meta.BlueprintID, err)
	}
	return Output{Body: pdf, ContentType: "application/pdf", Ext: "pdf"}, nil
}
