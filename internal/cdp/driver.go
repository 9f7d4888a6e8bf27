package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const commandTimeout = 10 * time.Second

// driver is the slice of CDP a Page needs. chromedpDriver is the real one.
type driver interface {
	Install(ctx context.Context) error
	Document(ctx context.Context) (*cdp.Node, error)
	ReplaceText(ctx context.Context, backend cdp.BackendNodeID, expected, wrapHTML string) (bool, error)
	Eval(ctx context.Context, js string) (bool, error)
}

// chromedpDriver runs commands on one attached tab.
type chromedpDriver struct {
	tabCtx context.Context
}

func (d *chromedpDriver) run(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(d.tabCtx, commandTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(cctx, chromedp.ActionFunc(fn))
}

// Install exposes the binding and registers the bootstrap script for this
// and every future document in the tab.
func (d *chromedpDriver) Install(ctx context.Context) error {
	return d.run(ctx, func(c context.Context) error {
		if err := dom.Enable().Do(c); err != nil {
			return fmt.Errorf("cdp: enable dom: %w", err)
		}
		if err := runtime.AddBinding(bindingName).Do(c); err != nil {
			return fmt.Errorf("cdp: add binding: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(bootstrapJS).Do(c); err != nil {
			return fmt.Errorf("cdp: add bootstrap script: %w", err)
		}
		_, exc, err := runtime.Evaluate(bootstrapJS).Do(c)
		if err != nil {
			return fmt.Errorf("cdp: evaluate bootstrap: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("cdp: bootstrap exception: %s", exc.Text)
		}
		return nil
	})
}

func (d *chromedpDriver) Document(ctx context.Context) (*cdp.Node, error) {
	var root *cdp.Node
	err := d.run(ctx, func(c context.Context) error {
		var err error
		root, err = dom.GetDocument().WithDepth(-1).Do(c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cdp: get document: %w", err)
	}
	return root, nil
}

func (d *chromedpDriver) ReplaceText(ctx context.Context, backend cdp.BackendNodeID, expected, wrapHTML string) (bool, error) {
	var applied bool
	err := d.run(ctx, func(c context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(backend).Do(c)
		if err != nil {
			return fmt.Errorf("resolve node %d: %w", backend, err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(c) }()

		res, exc, err := runtime.CallFunctionOn(replaceTextJS(expected, wrapHTML)).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("exception: %s", exc.Text)
		}
		applied = res != nil && string(res.Value) == "true"
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cdp: replace text: %w", err)
	}
	return applied, nil
}

func (d *chromedpDriver) Eval(ctx context.Context, js string) (bool, error) {
	var ok bool
	err := d.run(ctx, func(c context.Context) error {
		res, exc, err := runtime.Evaluate(js).WithReturnByValue(true).Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("exception: %s", exc.Text)
		}
		ok = res != nil && string(res.Value) == "true"
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cdp: eval: %w", err)
	}
	return ok, nil
}
