package layout

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/omrerr"
)

//go:embed default_layouts.yaml
var defaultLayouts []byte

// DefaultVersion is the exam version assumed when an upload names none.
const DefaultVersion = "version1"

type fileRect struct {
	X      int `mapstructure:"x"`
	Y      int `mapstructure:"y"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type fileOption struct {
	Label    string `mapstructure:"label"`
	fileRect `mapstructure:",squash"`
}

type fileQuestion struct {
	Options []fileOption `mapstructure:"options"`
}

// fileGrid is a regular block of bubbles: question i, option j sits at
// (X + j*DX, Y + i*DY).
type fileGrid struct {
	X         int      `mapstructure:"x"`
	Y         int      `mapstructure:"y"`
	DX        int      `mapstructure:"dx"`
	DY        int      `mapstructure:"dy"`
	Width     int      `mapstructure:"width"`
	Height    int      `mapstructure:"height"`
	Questions int      `mapstructure:"questions"`
	Options   int      `mapstructure:"options"`
	Labels    []string `mapstructure:"labels"`
}

type fileSubject struct {
	Name      string         `mapstructure:"name"`
	Key       []string       `mapstructure:"key"`
	KeyRepeat int            `mapstructure:"key_repeat"`
	Grid      *fileGrid      `mapstructure:"grid"`
	Questions []fileQuestion `mapstructure:"questions"`
}

type fileExam struct {
	Version  string        `mapstructure:"version"`
	Subjects []fileSubject `mapstructure:"subjects"`
}

type layoutFile struct {
	ReferenceWidth int `mapstructure:"reference_width"`
	Identification struct {
		Region *fileRect `mapstructure:"region"`
	} `mapstructure:"identification"`
	Exams []fileExam `mapstructure:"exams"`
}

// Load builds a registry from the layout file at path, or from the layouts
// compiled into the binary when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return LoadDefault()
	}
	return LoadFile(path)
}

// LoadDefault builds the registry from the embedded default layouts.
func LoadDefault() (*Registry, error) {
	return Parse(defaultLayouts, "yaml")
}

// LoadFile reads a YAML, JSON or TOML layout file.
func LoadFile(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, configError(err, "failed to read layout file", map[string]interface{}{"path": path})
	}
	return fromViper(v)
}

// Parse builds a registry from layout data in the given format ("yaml",
// "json", "toml").
func Parse(data []byte, format string) (*Registry, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, configError(err, "failed to parse layouts", map[string]interface{}{"format": format})
	}
	return fromViper(v)
}

// configError reports an unreadable layout source. The cause keeps its
// stack for logging.
func configError(cause error, msg string, details map[string]interface{}) error {
	err := omrerr.NewConfigurationError(msg, details)
	err.Cause = errors.WithStack(cause)
	return err
}

func fromViper(v *viper.Viper) (*Registry, error) {
	var f layoutFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, configError(err, "failed to decode layouts", nil)
	}

	if f.ReferenceWidth != 0 && f.ReferenceWidth != imaging.ReferenceWidth {
		return nil, omrerr.NewConfigurationError("layout reference width does not match the normalizer", map[string]interface{}{
			"reference_width": f.ReferenceWidth,
			"expected":        imaging.ReferenceWidth,
		})
	}
	if len(f.Exams) == 0 {
		return nil, omrerr.NewConfigurationError("layout file defines no exams", nil)
	}

	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, fe := range f.Exams {
		exam, err := fe.build()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(exam); err != nil {
			return nil, err
		}
	}

	if r := f.Identification.Region; r != nil {
		if err := reg.SetIdentification(Rect(*r)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (fe fileExam) build() (Exam, error) {
	exam := Exam{Version: fe.Version}
	for _, fs := range fe.Subjects {
		layout, err := fs.layout()
		if err != nil {
			return Exam{}, errors.Wrapf(err, "exam %s subject %s", fe.Version, fs.Name)
		}
		exam.Subjects = append(exam.Subjects, Subject{
			Name:   fs.Name,
			Layout: layout,
			Key:    fs.key(),
		})
	}
	return exam, nil
}

func (fs fileSubject) key() AnswerKey {
	repeat := max(fs.KeyRepeat, 1)
	key := make(AnswerKey, 0, len(fs.Key)*repeat)
	for i := 0; i < repeat; i++ {
		key = append(key, fs.Key...)
	}
	return key
}

func (fs fileSubject) layout() (SubjectLayout, error) {
	switch {
	case fs.Grid != nil && len(fs.Questions) > 0:
		return nil, omrerr.NewConfigurationError("subject sets both grid and questions", map[string]interface{}{
			"subject": fs.Name,
		})
	case fs.Grid != nil:
		return fs.Grid.expand()
	default:
		layout := make(SubjectLayout, len(fs.Questions))
		for qi, fq := range fs.Questions {
			opts := make([]Option, len(fq.Options))
			for oi, fo := range fq.Options {
				label := fo.Label
				if label == "" {
					label = DefaultLabel(oi)
				}
				opts[oi] = Option{Label: label, Rect: Rect(fo.fileRect)}
			}
			layout[qi] = Question{Options: opts}
		}
		return layout, nil
	}
}

func (g fileGrid) expand() (SubjectLayout, error) {
	if g.Questions <= 0 || g.Options <= 0 {
		return nil, omrerr.NewConfigurationError("grid needs positive questions and options", map[string]interface{}{
			"questions": g.Questions,
			"options":   g.Options,
		})
	}
	if len(g.Labels) > 0 && len(g.Labels) != g.Options {
		return nil, omrerr.NewConfigurationError(fmt.Sprintf("grid has %d options but %d labels", g.Options, len(g.Labels)), nil)
	}

	layout := make(SubjectLayout, g.Questions)
	for row := 0; row < g.Questions; row++ {
		opts := make([]Option, g.Options)
		for col := 0; col < g.Options; col++ {
			label := DefaultLabel(col)
			if len(g.Labels) > 0 {
				label = g.Labels[col]
			}
			opts[col] = Option{
				Label: label,
				Rect: Rect{
					X:      g.X + col*g.DX,
					Y:      g.Y + row*g.DY,
					Width:  g.Width,
					Height: g.Height,
				},
			}
		}
		layout[row] = Question{Options: opts}
	}
	return layout, nil
}
