package providers

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"github.com/disintegration/gift"
	"github.com/krishkalaria12/snap-forge/apperr"
	_ "golang.org/x/image/webp"
)

const (
	MaxImageWidth  = 4000
	MaxImageHeight = 4000
	JPEGQuality    = 90
	MaxBlurRadius  = 50
	MaxBrightness  = 100
	MaxContrast    = 100
	MaxSaturation  = 200
	MaxPixelate    = 50

	FilterModel = "filter"
)

// filterOrder is the order filters are applied in, whatever order the query
// string listed them in. Geometry first, then tone, then effects.
var filterOrder = []string{
	"crop_to_size",
	"resize",
	"rotate",
	"brightness_increase",
	"brightness_decrease",
	"contrast_increase",
	"contrast_decrease",
	"saturation_increase",
	"saturation_decrease",
	"gaussian_blur",
	"pixelate",
	"grayscale",
	"invert",
}

var supportedFilters = func() map[string]bool {
	m := make(map[string]bool, len(filterOrder))
	for _, name := range filterOrder {
		m[name] = true
	}
	return m
}()

// SupportedFilter reports whether name is a filter query parameter.
func SupportedFilter(name string) bool { return supportedFilters[name] }

type FilterError struct {
	FilterName string
	Message    string
}

func (e FilterError) Error() string {
	return fmt.Sprintf("filter '%s': %s", e.FilterName, e.Message)
}

// FilterEngine applies the local gift filter chain. It needs no network and
// is the only "provider" that runs in process.
type FilterEngine struct{}

func NewFilterEngine() *FilterEngine { return &FilterEngine{} }

func (FilterEngine) Name() string { return FilterModel }

// Apply decodes src, runs every recognised filter in params and encodes the
// result as png when the input was png and as jpeg otherwise. Bad parameters
// and undecodable input are validation errors.
func (FilterEngine) Apply(src []byte, params map[string]string) (*Result, error) {
	filters, err := ParseFilters(params)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	img, format, err := decodeImage(src)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	g := gift.New(filters...)
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)

	var buf bytes.Buffer
	out := &Result{Model: FilterModel}
	if format == "png" {
		err = png.Encode(&buf, dst)
		out.Format, out.ContentType = "png", "image/png"
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality})
		out.Format, out.ContentType = "jpeg", "image/jpeg"
	}
	if err != nil {
		return nil, apperr.Internal("failed to encode image", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

// CheckImage returns a validation error unless src decodes as a supported
// image within MaxImageWidth x MaxImageHeight.
func CheckImage(src []byte) error {
	if _, _, err := decodeImage(src); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

func decodeImage(src []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %v", err)
	}
	if cfg.Width > MaxImageWidth || cfg.Height > MaxImageHeight {
		return nil, "", fmt.Errorf("image too large (max %dx%d)", MaxImageWidth, MaxImageHeight)
	}
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %v", err)
	}
	return img, format, nil
}

// ParseFilters builds the filter chain from query parameters. Unknown keys
// are ignored; at least one filter is required.
func ParseFilters(queryParams map[string]string) ([]gift.Filter, error) {
	var filters []gift.Filter

	for _, filterName := range filterOrder {
		param, ok := queryParams[filterName]
		if !ok {
			continue
		}
		filter, err := createFilter(filterName, param)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}

	if len(filters) == 0 {
		return nil, fmt.Errorf("no valid filters specified")
	}
	return filters, nil
}

func parseIntParam(param, paramName string) (int, error) {
	if param == "" {
		return 0, fmt.Errorf("%s parameter is required", paramName)
	}

	value, err := strconv.Atoi(param)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", paramName)
	}

	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive", paramName)
	}

	return value, nil
}

func parseFloatParam(param, paramName string, min, max float32) (float32, error) {
	if param == "" {
		return 0, fmt.Errorf("%s parameter is required", paramName)
	}

	value, err := strconv.ParseFloat(param, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be a number", paramName)
	}

	floatVal := float32(value)
	if floatVal < min || floatVal > max {
		return 0, fmt.Errorf("%s must be between %.1f and %.1f", paramName, min, max)
	}

	return floatVal, nil
}

func parseDimensions(param, filterName string) (int, int, error) {
	if param == "" {
		return 0, 0, FilterError{filterName, "dimensions parameter is required"}
	}

	parts := strings.Split(strings.ToLower(param), "x")
	if len(parts) != 2 {
		return 0, 0, FilterError{filterName, "dimensions must be in format 'widthxheight'"}
	}

	width, err := parseIntParam(parts[0], "width")
	if err != nil {
		return 0, 0, FilterError{filterName, err.Error()}
	}

	height, err := parseIntParam(parts[1], "height")
	if err != nil {
		return 0, 0, FilterError{filterName, err.Error()}
	}

	if width > MaxImageWidth || height > MaxImageHeight {
		return 0, 0, FilterError{filterName, fmt.Sprintf("dimensions too large (max %dx%d)", MaxImageWidth, MaxImageHeight)}
	}

	return width, height, nil
}

func createFilter(filterName, param string) (gift.Filter, error) {
	switch filterName {
	case "resize":
		width, height, err := parseDimensions(param, filterName)
		if err != nil {
			return nil, err
		}
		return gift.Resize(width, height, gift.LanczosResampling), nil

	case "crop_to_size":
		width, height, err := parseDimensions(param, filterName)
		if err != nil {
			return nil, err
		}
		return gift.CropToSize(width, height, gift.CenterAnchor), nil

	case "rotate":
		degree, err := parseFloatParam(param, "rotation angle", -360, 360)
		if err != nil {
			return nil, FilterError{filterName, err.Error()}
		}
		return gift.Rotate(degree, color.Transparent, gift.CubicInterpolation), nil

	case "brightness_increase", "brightness_decrease":
		value, err := parseFloatParam(param, "brightness", 0, MaxBrightness)
		if err != nil {
			return nil, FilterError{filterName, err.Error()}
		}
		return gift.Brightness(signed(filterName, value)), nil

	case "contrast_increase", "contrast_decrease":
		value, err := parseFloatParam(param, "contrast", 0, MaxContrast)
		if err != nil {
			return nil, FilterError{filterName, err.Error()}
		}
		return gift.Contrast(signed(filterName, value)), nil

	case "saturation_increase", "saturation_decrease":
		value, err := parseFloatParam(param, "saturation", 0, MaxSaturation)
		if err != nil {
			return nil, FilterError{filterName, err.Error()}
		}
		return gift.Saturation(signed(filterName, value)), nil

	case "gaussian_blur":
		value, err := parseFloatParam(param, "blur radius", 0.1, MaxBlurRadius)
		if err != nil {
			return nil, FilterError{filterName, err.Error()}
		}
		return gift.GaussianBlur(value), nil

	case "pixelate":
		value, err := parseIntParam(param, "pixelate size")
		if err != nil {
			return nil, FilterError{filterName, err.Error()}
		}
		if value > MaxPixelate {
			return nil, FilterError{filterName, fmt.Sprintf("pixelate size too large (max %d)", MaxPixelate)}
		}
		return gift.Pixelate(value), nil

	case "grayscale":
		return gift.Grayscale(), nil

	case "invert":
		return gift.Invert(), nil

	default:
		return nil, FilterError{filterName, "unsupported filter"}
	}
}

func signed(filterName string, v float32) float32 {
	if strings.HasSuffix(filterName, "_decrease") {
		return -v
	}
	return v
}
