package reflection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ErrUnsupportedType is returned when WGSL declares a parameter type the
// runtime has no representation for.
var ErrUnsupportedType = errors.New("reflection: unsupported WGSL type")

// FromWGSL parses and lowers WGSL source and returns its reflection.
//
// Every module-scope uniform, storage and handle variable becomes a field of
// the program's globals with its @group/@binding pair. Entry points carry
// their @workgroup_size. Validation findings do not fail the call; they are
// returned as a newline separated diagnostics blob.
func FromWGSL(name, source string) (*Program, []byte, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, nil, fmt.Errorf("reflection: parse %s: %w", name, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, nil, fmt.Errorf("reflection: lower %s: %w", name, err)
	}
	var diag []byte
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, nil, fmt.Errorf("reflection: validate %s: %w", name, err)
	}
	if len(verrs) > 0 {
		lines := make([]string, len(verrs))
		for i, ve := range verrs {
			lines[i] = ve.Error()
		}
		diag = []byte(strings.Join(lines, "\n"))
	}

	c := &irConverter{module: module, cache: make(map[ir.TypeHandle]*Type)}
	var globals []Field
	for _, gv := range module.GlobalVariables {
		t, err := c.global(gv)
		if err != nil {
			return nil, diag, fmt.Errorf("reflection: global %q: %w", gv.Name, err)
		}
		if t == nil {
			continue
		}
		f := Field{Name: gv.Name, Type: t}
		if gv.Binding != nil {
			f.Binding = &BindingPoint{Group: gv.Binding.Group, Binding: gv.Binding.Binding}
		}
		globals = append(globals, f)
	}

	var eps []*EntryPoint
	for _, ep := range module.EntryPoints {
		eps = append(eps, &EntryPoint{
			Name:            ep.Name,
			Stage:           convertStage(ep.Stage),
			ThreadGroupSize: ep.Workgroup,
			Params:          Struct(ep.Name + ".params"),
		})
	}

	prog := NewProgram(name, StructWithLayout(name+".globals", 0, globals), eps...)
	for _, t := range c.cache {
		prog.AddType(t)
	}
	return prog, diag, nil
}

func convertStage(s ir.ShaderStage) Stage {
	switch s {
	case ir.StageVertex:
		return StageVertex
	case ir.StageFragment:
		return StageFragment
	default:
		return StageCompute
	}
}

type irConverter struct {
	module *ir.Module
	cache  map[ir.TypeHandle]*Type
}

func (c *irConverter) global(gv ir.GlobalVariable) (*Type, error) {
	switch gv.Space {
	case ir.SpaceUniform:
		inner, err := c.convert(gv.Type)
		if err != nil {
			return nil, err
		}
		return ConstantBuffer(inner), nil
	case ir.SpaceStorage:
		access := AccessReadWrite
		if gv.Access == ir.StorageRead {
			access = AccessRead
		}
		inner, err := c.convert(gv.Type)
		if err != nil {
			return nil, err
		}
		if inner.Kind == KindArray {
			return StructuredBuffer(inner.Element, access), nil
		}
		return StructuredBuffer(inner, access), nil
	case ir.SpaceHandle:
		return c.handle(gv.Type)
	default:
		// Private and workgroup variables are not host-visible parameters.
		return nil, nil
	}
}

func (c *irConverter) handle(h ir.TypeHandle) (*Type, error) {
	switch inner := c.module.Types[h].Inner.(type) {
	case ir.SamplerType:
		return Sampler(), nil
	case ir.ImageType:
		shape := ShapeTexture2D
		switch inner.Dim {
		case ir.Dim1D:
			shape = ShapeTexture1D
		case ir.Dim3D:
			shape = ShapeTexture3D
		case ir.DimCube:
			shape = ShapeTextureCube
		}
		access := AccessRead
		if inner.Class == ir.ImageClassStorage {
			access = AccessReadWrite
		}
		return Texture(shape, Vector(ScalarFloat32, 4), access), nil
	default:
		return nil, fmt.Errorf("%w: handle %T", ErrUnsupportedType, inner)
	}
}

func (c *irConverter) convert(h ir.TypeHandle) (*Type, error) {
	if t, ok := c.cache[h]; ok {
		return t, nil
	}
	if int(h) >= len(c.module.Types) {
		return nil, fmt.Errorf("%w: type handle %d out of range", ErrUnsupportedType, h)
	}
	irType := c.module.Types[h]
	var t *Type
	switch inner := irType.Inner.(type) {
	case ir.ScalarType:
		s, err := convertScalar(inner)
		if err != nil {
			return nil, err
		}
		t = Scalar(s)
	case ir.AtomicType:
		s, err := convertScalar(inner.Scalar)
		if err != nil {
			return nil, err
		}
		t = Scalar(s)
	case ir.VectorType:
		s, err := convertScalar(inner.Scalar)
		if err != nil {
			return nil, err
		}
		t = Vector(s, uint32(inner.Size))
	case ir.MatrixType:
		s, err := convertScalar(inner.Scalar)
		if err != nil {
			return nil, err
		}
		t = Matrix(s, uint32(inner.Rows), uint32(inner.Columns))
	case ir.ArrayType:
		elem, err := c.convert(inner.Base)
		if err != nil {
			return nil, err
		}
		var count uint32
		if inner.Size.Constant != nil {
			count = *inner.Size.Constant
		}
		t = Array(elem, count)
	case ir.StructType:
		fields := make([]Field, 0, len(inner.Members))
		for _, m := range inner.Members {
			ft, err := c.convert(m.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: m.Name, Type: ft, Offset: m.Offset})
		}
		t = StructWithLayout(irType.Name, inner.Span, fields)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, inner)
	}
	c.cache[h] = t
	return t, nil
}

func convertScalar(s ir.ScalarType) (ScalarType, error) {
	switch s.Kind {
	case ir.ScalarBool:
		return ScalarBool, nil
	case ir.ScalarSint:
		switch s.Width {
		case 2:
			return ScalarInt16, nil
		case 8:
			return ScalarInt64, nil
		}
		return ScalarInt32, nil
	case ir.ScalarUint:
		switch s.Width {
		case 2:
			return ScalarUint16, nil
		case 8:
			return ScalarUint64, nil
		}
		return ScalarUint32, nil
	case ir.ScalarFloat:
		switch s.Width {
		case 2:
			return ScalarFloat16, nil
		case 8:
			return ScalarFloat64, nil
		}
		return ScalarFloat32, nil
	}
	return ScalarNone, fmt.Errorf("%w: scalar kind %d", ErrUnsupportedType, s.Kind)
}
