package transform

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/danielloader/imgresize/internal/errs"
	"github.com/danielloader/imgresize/internal/types"
)

// mergeQuery parses query into opts, overwriting any derivative-supplied
// value. Provenance is marked user-supplied for width, height, fit,
// gravity, quality and format; other parameters carry no provenance.
// Unrecognized parameters land in opts.Extras verbatim.
func mergeQuery(opts *types.TransformOptions, query url.Values) error {
	for key, vals := range query {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		if !knownParams[strings.ToLower(key)] {
			opts.Extras[key] = v
			continue
		}
		if err := applyParam(opts, strings.ToLower(key), v); err != nil {
			return err
		}
	}
	return validate(opts)
}

func applyParam(o *types.TransformOptions, key, v string) error {
	switch key {
	case "width", "w":
		n, err := parseIntParam(key, v)
		if err != nil {
			return err
		}
		o.Width = n
		o.Provenance["width"] = types.ProvenanceUser
	case "height", "h":
		n, err := parseIntParam(key, v)
		if err != nil {
			return err
		}
		o.Height = n
		o.Provenance["height"] = types.ProvenanceUser
	case "fit":
		o.Fit = types.Fit(v)
		o.Provenance["fit"] = types.ProvenanceUser
	case "gravity":
		g, err := parseGravity(v)
		if err != nil {
			return err
		}
		o.Gravity = g
		o.Provenance["gravity"] = types.ProvenanceUser
	case "quality", "q":
		n, err := parseIntParam(key, v)
		if err != nil {
			return err
		}
		if n < 1 || n > 100 {
			return errs.New(errs.KindInvalidRequest, nil, fmt.Sprintf("quality %d out of range [1,100]", n))
		}
		o.Quality = n
		o.Provenance["quality"] = types.ProvenanceUser
	case "format", "f":
		o.Format = types.Format(v)
		o.Provenance["format"] = types.ProvenanceUser
	case "dpr":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.KindInvalidRequest, err, "invalid dpr")
		}
		o.DPR = f
	case "background", "bg":
		o.Background = v
	case "sharpen":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.KindInvalidRequest, err, "invalid sharpen")
		}
		o.Sharpen = f
	case "blur":
		n, err := parseIntParam(key, v)
		if err != nil {
			return err
		}
		if n < 1 || n > 250 {
			return errs.New(errs.KindInvalidRequest, nil, fmt.Sprintf("blur %d out of range [1,250]", n))
		}
		o.Blur = n
	case "rotate":
		n, err := parseIntParam(key, v)
		if err != nil {
			return err
		}
		switch n {
		case 90, 180, 270:
			o.Rotate = types.Rotate(n)
		default:
			return errs.New(errs.KindInvalidRequest, nil, fmt.Sprintf("rotate %d not in {90,180,270}", n))
		}
	case "flip":
		o.Flip = parseBool(v)
	case "flop":
		o.Flop = parseBool(v)
	case "trim":
		o.Trim = parseBool(v)
	case "brightness":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.KindInvalidRequest, err, "invalid brightness")
		}
		o.Brightness = f
	case "contrast":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.KindInvalidRequest, err, "invalid contrast")
		}
		o.Contrast = f
	case "saturation":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.KindInvalidRequest, err, "invalid saturation")
		}
		o.Saturation = f
	case "gamma":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.KindInvalidRequest, err, "invalid gamma")
		}
		o.Gamma = f
	case "border":
		o.Border = v
	case "metadata":
		o.MetadataStrip = types.MetadataStripPolicy(v)
	case "derivative":
		o.Derivative = v
	case "smart":
		o.Smart = parseBool(v)
	case "platform":
		o.Platform = v
	case "content-type":
		o.ContentType = v
	case "device":
		o.Device = v
	case "aspect":
		o.Aspect = v
	case "focal":
		o.Focal = v
	case "allowexpand":
		o.AllowExpand = parseBool(v)
	case "cache":
		b := parseBool(v)
		o.Cache = &b
	case "ttl":
		n, err := parseIntParam(key, v)
		if err != nil {
			return err
		}
		o.TTL = n
	}
	return nil
}

func parseIntParam(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.New(errs.KindInvalidRequest, err, fmt.Sprintf("invalid %s %q", key, v))
	}
	return n, nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
	}
	return b
}

// parseGravity accepts a named gravity ("north", "center", ...) or an
// explicit "x,y" coordinate pair.
func parseGravity(v string) (types.Gravity, error) {
	if strings.Contains(v, ",") {
		parts := strings.SplitN(v, ",", 2)
		x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errX != nil || errY != nil {
			return types.Gravity{}, errs.New(errs.KindInvalidRequest, nil, fmt.Sprintf("invalid gravity %q", v))
		}
		return types.Gravity{X: x, Y: y, HasXY: true}, nil
	}
	switch v {
	case "north", "south", "east", "west", "center",
		"north-east", "north-west", "south-east", "south-west", "auto":
		return types.Gravity{Name: v}, nil
	default:
		return types.Gravity{}, errs.New(errs.KindInvalidRequest, nil, fmt.Sprintf("invalid gravity %q", v))
	}
}

// validate rejects negative width/height, the one bound not already
// enforced at parse time. It makes no cross-field checks.
func validate(o *types.TransformOptions) error {
	if o.Width < 0 || o.Height < 0 {
		return errs.New(errs.KindInvalidRequest, nil, "width/height must be non-negative")
	}
	return nil
}
