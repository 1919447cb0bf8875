package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/cjeanneret/canoncap/internal/debug"
	"github.com/cjeanneret/canoncap/internal/edsdk"
)

var (
	// ErrNoCamera is returned when the SDK enumerates zero cameras.
	ErrNoCamera = errors.New("no Canon camera detected")

	// ErrTimeout is returned when the camera never announced the new file.
	ErrTimeout = errors.New("timed out waiting for the camera to announce the image")

	// ErrClosed is returned by Shoot after Close.
	ErrClosed = errors.New("camera session is closed")
)

// StepError ties an SDK failure to the step of the session that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	if code, ok := edsdk.Code(e.Err); ok {
		return fmt.Sprintf("%s (Code: %x)", e.Step, uint32(code))
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Options configures a Canon session.
type Options struct {
	Index    int          // camera index in the SDK camera list
	SaveTo   edsdk.SaveTo // where the body stores captures
	Dir      string       // download directory
	FileName string       // file name template, see Options.outputPath

	Timeout      time.Duration // how long Shoot waits for the object event
	PumpInterval time.Duration // EdsGetEvent period while waiting

	Retries       int           // retries on busy / no camera, 0 = fail on first error
	RetryInterval time.Duration // first retry delay, doubled each time

	Out io.Writer // user-facing progress lines; nil discards them
}

const (
	DefaultFileName     = "captured_image.jpg"
	DefaultTimeout      = 6 * time.Second
	DefaultPumpInterval = 50 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.SaveTo == 0 {
		o.SaveTo = edsdk.SaveToHost
	}
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.FileName == "" {
		o.FileName = DefaultFileName
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PumpInterval <= 0 {
		o.PumpInterval = DefaultPumpInterval
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 250 * time.Millisecond
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	return o
}

// Canon is a Camera driven through EDSDK.  The camera saves to the host and
// every capture is downloaded as soon as the body announces it.
type Canon struct {
	sdk  edsdk.SDK
	opts Options

	mu          sync.Mutex
	initialized bool
	list        edsdk.Ref
	camera      edsdk.Ref
	session     bool
	closed      bool
	name        string
	seq         int
	lastFile    string // camera file name of the last download

	// items receives directory items announced by the object event handler.
	items chan edsdk.Ref
}

// OpenCanon initializes the SDK, opens a session with the configured camera,
// switches it to save on the host and installs the download handler.  On
// failure everything acquired so far is released again.
func OpenCanon(ctx context.Context, sdk edsdk.SDK, opts Options) (*Canon, error) {
	c := &Canon{
		sdk:   sdk,
		opts:  opts.withDefaults(),
		items: make(chan edsdk.Ref, 8),
	}
	if err := c.open(ctx); err != nil {
		if terr := c.teardown(); terr != nil {
			debug.Error(terr)
		}
		return nil, err
	}
	return c, nil
}

func (c *Canon) open(ctx context.Context) error {
	debug.Section("Opening camera")

	debug.Step(1, "Initializing EDSDK")
	err := c.sdk.Initialize()
	debug.SDK("EdsInitializeSDK", err)
	if err != nil {
		return &StepError{Step: "Failed to initialize EDSDK", Err: err}
	}
	c.initialized = true

	debug.Step(2, "Enumerating cameras")
	count := 0
	err = c.retry(ctx, func() error {
		var err error
		count, err = c.discover()
		return err
	})
	if err != nil {
		return err
	}
	debug.Value("Cameras detected", count)
	if c.opts.Index < 0 || c.opts.Index >= count {
		return &StepError{
			Step: fmt.Sprintf("Failed to get camera reference (index %d, %d detected)", c.opts.Index, count),
			Err:  edsdk.ErrInvalidIndex,
		}
	}

	debug.Step(3, "Selecting camera")
	c.camera, err = c.sdk.GetChildAtIndex(c.list, c.opts.Index)
	debug.SDK(debug.Fmt("EdsGetChildAtIndex(%d)", c.opts.Index), err)
	if err != nil {
		return &StepError{Step: "Failed to get camera reference", Err: err}
	}
	if info, err := c.sdk.GetDeviceInfo(c.camera); err == nil {
		c.name = info.DeviceDescription
		debug.Value("Port", info.PortName)
	}

	debug.Step(4, "Opening session")
	err = c.retry(ctx, func() error {
		err := c.sdk.OpenSession(c.camera)
		debug.SDK("EdsOpenSession", err)
		return err
	})
	if err != nil {
		return &StepError{Step: "Failed to open camera session", Err: err}
	}
	c.session = true
	if name, err := c.sdk.GetPropertyString(c.camera, edsdk.PropProductName); err == nil && name != "" {
		c.name = name
	}
	if c.name == "" {
		c.name = "Canon"
	}
	debug.Info("Connected to %s", c.name)

	debug.Step(5, "Setting SaveTo="+c.opts.SaveTo.String())
	err = c.sdk.SetPropertyUint32(c.camera, edsdk.PropSaveTo, uint32(c.opts.SaveTo))
	debug.SDK("EdsSetPropertyData(SaveTo)", err)
	if err != nil {
		return &StepError{Step: "Failed to set SaveTo property", Err: err}
	}
	if c.opts.SaveTo != edsdk.SaveToCamera {
		err = c.sdk.SetCapacity(c.camera, edsdk.DefaultHostCapacity)
		debug.SDK("EdsSetCapacity", err)
		if err != nil {
			return &StepError{Step: "Failed to set host capacity", Err: err}
		}
	}

	debug.Step(6, "Registering object event handler")
	err = c.sdk.SetObjectEventHandler(c.camera, edsdk.ObjectEventAll, c.handleObjectEvent)
	debug.SDK("EdsSetObjectEventHandler(All)", err)
	if err != nil {
		return &StepError{Step: "Failed to register object event handler", Err: err}
	}
	return nil
}

// discover fetches the camera list and keeps it when it is not empty.
func (c *Canon) discover() (int, error) {
	list, err := c.sdk.GetCameraList()
	debug.SDK("EdsGetCameraList", err)
	if err != nil {
		return 0, &StepError{Step: "Failed to get camera list", Err: err}
	}
	count, err := c.sdk.GetChildCount(list)
	debug.SDK("EdsGetChildCount", err)
	if err != nil {
		c.release(list, "camera list")
		return 0, &StepError{Step: "Failed to get camera count", Err: err}
	}
	if count == 0 {
		c.release(list, "camera list")
		return 0, ErrNoCamera
	}
	c.list = list
	return count, nil
}

// retry runs op until it succeeds, fails with a non transient error, or the
// retry budget is spent.  Busy codes and an empty camera list are transient.
func (c *Canon) retry(ctx context.Context, op func() error) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrNoCamera) {
			return err
		}
		if code, ok := edsdk.Code(err); ok && code.Busy() {
			return err
		}
		return backoff.Permanent(err)
	}, c.retryPolicy(ctx), func(err error, d time.Duration) {
		debug.Live("Retrying in %v: %v", d, err)
	})
}

// retryPolicy returns the backoff for retry.  WithMaxRetries treats 0 as
// unlimited, so a zero budget maps to StopBackOff: one attempt, no retry.
func (c *Canon) retryPolicy(ctx context.Context) backoff.BackOffContext {
	if c.opts.Retries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     c.opts.RetryInterval,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         2 * time.Second,
		Clock:               backoff.SystemClock}, uint64(c.opts.Retries)), ctx)
}

// handleObjectEvent runs on the SDK's dispatch path.  It must not take c.mu:
// Shoot holds it while pumping events.
func (c *Canon) handleObjectEvent(event edsdk.ObjectEvent, obj edsdk.Ref) error {
	debug.Event(event.String(), uintptr(obj))
	switch event {
	case edsdk.ObjectEventDirItemCreated, edsdk.ObjectEventDirItemRequestTransfer:
		select {
		case c.items <- obj:
			return nil
		default:
			debug.Live("Dropping %s, download queue full", event)
		}
	}
	if obj != edsdk.NilRef {
		c.release(obj, "object")
	}
	return nil
}

// Name returns the camera product name.
func (c *Canon) Name() string {
	return c.name
}

// Shoot sends TakePicture, waits for the camera to announce the file and
// downloads it.
func (c *Canon) Shoot(ctx context.Context) (*Shot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.drain()

	c.seq++
	shot := &Shot{
		ID:      uuid.NewString(),
		Seq:     c.seq,
		Camera:  c.name,
		TakenAt: time.Now(),
	}

	fmt.Fprintln(c.opts.Out, "Camera ready! Taking a picture...")
	err := c.retry(ctx, func() error {
		err := c.sdk.SendCommand(c.camera, edsdk.CommandTakePicture, 0)
		debug.SDK("EdsSendCommand(TakePicture)", err)
		return err
	})
	if err != nil {
		return nil, &StepError{Step: "Failed to capture image", Err: err}
	}

	item, info, err := c.waitForItem(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(c.opts.Out, "New image detected!")

	if err := c.download(item, info, shot); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.opts.Out, "Image saved as: %s\n", shot.Path)
	debug.Shot(shot.Seq, shot.Path, shot.Size)
	return shot, nil
}

// waitForItem pumps events until a new file is announced.  Items naming the
// file downloaded last are the late second event of a body that sends both
// DirItemCreated and DirItemRequestTransfer; they are released and skipped.
func (c *Canon) waitForItem(ctx context.Context) (edsdk.Ref, edsdk.DirectoryItemInfo, error) {
	timeout := time.NewTimer(c.opts.Timeout)
	defer timeout.Stop()
	pump := time.NewTicker(c.opts.PumpInterval)
	defer pump.Stop()

	for {
		select {
		case item := <-c.items:
			info, err := c.sdk.GetDirectoryItemInfo(item)
			debug.SDK("EdsGetDirectoryItemInfo", err)
			if err != nil {
				_ = c.sdk.DownloadCancel(item)
				c.release(item, "directory item")
				return edsdk.NilRef, info, &StepError{Step: "Failed to get file info", Err: err}
			}
			if c.lastFile != "" && info.FileName == c.lastFile {
				debug.Live("Skipping %s, already downloaded", info.FileName)
				c.release(item, "stale directory item")
				continue
			}
			return item, info, nil
		case <-pump.C:
			if err := c.sdk.GetEvent(); err != nil {
				return edsdk.NilRef, edsdk.DirectoryItemInfo{}, &StepError{Step: "Failed to pump camera events", Err: err}
			}
		case <-timeout.C:
			return edsdk.NilRef, edsdk.DirectoryItemInfo{}, fmt.Errorf("after %v: %w", c.opts.Timeout, ErrTimeout)
		case <-ctx.Done():
			return edsdk.NilRef, edsdk.DirectoryItemInfo{}, ctx.Err()
		}
	}
}

// download saves item to disk.  The stream and the item are released exactly
// once, stream first.
func (c *Canon) download(item edsdk.Ref, info edsdk.DirectoryItemInfo, shot *Shot) error {
	defer c.release(item, "directory item")

	shot.CameraFile = info.FileName
	debug.Verbose("Camera file %s, %d bytes", info.FileName, info.Size)

	path := c.opts.outputPath(shot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		_ = c.sdk.DownloadCancel(item)
		return fmt.Errorf("create download directory: %w", err)
	}

	stream, err := c.sdk.CreateFileStream(path, edsdk.CreateAlways, edsdk.AccessWrite)
	debug.SDK("EdsCreateFileStream("+path+")", err)
	if err != nil {
		_ = c.sdk.DownloadCancel(item)
		return &StepError{Step: "Failed to create file stream", Err: err}
	}
	defer c.release(stream, "file stream")

	err = c.sdk.Download(item, info.Size, stream)
	debug.SDK("EdsDownload", err)
	if err != nil {
		_ = c.sdk.DownloadCancel(item)
		return &StepError{Step: "Failed to download image", Err: err}
	}

	err = c.sdk.DownloadComplete(item)
	debug.SDK("EdsDownloadComplete", err)
	if err != nil {
		return &StepError{Step: "Failed to finalize download", Err: err}
	}

	c.lastFile = info.FileName
	shot.Path = path
	shot.Size = info.Size
	shot.SavedAt = time.Now()
	return nil
}

func (c *Canon) release(ref edsdk.Ref, what string) {
	n, err := c.sdk.Release(ref)
	if debug.IsEnabled(debug.LevelTrace) {
		debug.SDK(fmt.Sprintf("EdsRelease(%s) refs=%d", what, n), err)
	}
	if err != nil {
		debug.Error(fmt.Errorf("release %s: %w", what, err))
	}
}

// drain releases directory items nobody asked for, e.g. the second event of
// a body that sends both DirItemCreated and DirItemRequestTransfer.
func (c *Canon) drain() {
	for {
		select {
		case item := <-c.items:
			c.release(item, "stale directory item")
		default:
			return
		}
	}
}

// Close ends the session: close session, release camera, release camera
// list, terminate SDK.  It is safe to call more than once.
func (c *Canon) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.teardown()
}

func (c *Canon) teardown() error {
	var errs []error
	c.drain()
	if c.session {
		err := c.sdk.CloseSession(c.camera)
		debug.SDK("EdsCloseSession", err)
		if err != nil {
			errs = append(errs, &StepError{Step: "Failed to close camera session", Err: err})
		}
		c.session = false
	}
	if c.camera != edsdk.NilRef {
		c.release(c.camera, "camera")
		c.camera = edsdk.NilRef
	}
	if c.list != edsdk.NilRef {
		c.release(c.list, "camera list")
		c.list = edsdk.NilRef
	}
	if c.initialized {
		err := c.sdk.Terminate()
		debug.SDK("EdsTerminateSDK", err)
		if err != nil {
			errs = append(errs, &StepError{Step: "Failed to terminate EDSDK", Err: err})
		}
		c.initialized = false
	}
	return errors.Join(errs...)
}
