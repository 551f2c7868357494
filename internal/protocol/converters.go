package protocol

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/menu"
)

// Field keys.
const (
	keyParentID      = "PI"
	keyID            = "ID"
	keyName          = "NM"
	keyUUID          = "UU"
	keyVersion       = "VE"
	keyPlatform      = "PF"
	keyReadOnly      = "RO"
	keyVisible       = "VI"
	keyLocalOnly     = "LO"
	keyEeprom        = "EE"
	keyVariable      = "VN"
	keyFunction      = "FN"
	keyCurrent       = "VC"
	keyAnalogMax     = "AM"
	keyAnalogOffset  = "AO"
	keyAnalogDivisor = "AD"
	keyAnalogUnit    = "AU"
	keyAnalogStep    = "AS"
	keyBoolNaming    = "BN"
	keyCount         = "NC"
	keyRows          = "NR"
	keyMaxLength     = "ML"
	keyEditType      = "EM"
	keyDecimalPlaces = "FD"
	keyNegative      = "NA"
	keyAlpha         = "RA"
	keyWidth         = "WI"
	keyScrollOffset  = "SO"
	keyScrollMode    = "SM"
	keySecured       = "SE"
	keyHbInterval    = "HI"
	keyHbMode        = "HR"
	keyTimestamp     = "TM"
	keyCorrelation   = "IC"
	keyAckStatus     = "ST"
	keyChangeType    = "TC"
	keyBootType      = "BT"
	keyDialogMode    = "MO"
	keyHeader        = "HF"
	keyBuffer        = "BU"
	keyButton1       = "B1"
	keyButton2       = "B2"

	valuePrefix byte = 'C'
	namePrefix  byte = 'c'
)

const defaultHeartbeatMillis = 1500

func registerDefaults(c *TagValCodec) {
	c.Register(commands.TypeHeartbeat, typedConverter(encodeHeartbeat, decodeHeartbeat))
	c.Register(commands.TypeJoin, typedConverter(encodeJoin, decodeJoin))
	c.Register(commands.TypePairing, typedConverter(encodePairing, decodePairing))
	c.Register(commands.TypeAcknowledgement, typedConverter(encodeAck, decodeAck))
	c.Register(commands.TypeDialog, typedConverter(encodeDialog, decodeDialog))
	c.Register(commands.TypeBootstrap, typedConverter(encodeBootstrap, decodeBootstrap))
	c.Register(commands.TypeChange, typedConverter(encodeChange, decodeChange))

	c.Register(commands.TypeAnalogBoot, typedConverter(encodeAnalogBoot, decodeAnalogBoot))
	c.Register(commands.TypeBooleanBoot, typedConverter(encodeBooleanBoot, decodeBooleanBoot))
	c.Register(commands.TypeEnumBoot, typedConverter(encodeEnumBoot, decodeEnumBoot))
	c.Register(commands.TypeActionBoot, typedConverter(encodeActionBoot, decodeActionBoot))
	c.Register(commands.TypeSubMenuBoot, typedConverter(encodeSubMenuBoot, decodeSubMenuBoot))
	c.Register(commands.TypeTextBoot, typedConverter(encodeTextBoot, decodeTextBoot))
	c.Register(commands.TypeLargeNumberBoot, typedConverter(encodeLargeNumberBoot, decodeLargeNumberBoot))
	c.Register(commands.TypeFloatBoot, typedConverter(encodeFloatBoot, decodeFloatBoot))
	c.Register(commands.TypeRgbBoot, typedConverter(encodeRgbBoot, decodeRgbBoot))
	c.Register(commands.TypeScrollChoiceBoot, typedConverter(encodeScrollBoot, decodeScrollBoot))
	c.Register(commands.TypeRuntimeListBoot, typedConverter(encodeRuntimeListBoot, decodeRuntimeListBoot))
}

// fieldReader keeps the first error so decoders read like straight-line code.
type fieldReader struct {
	t   TagValues
	err error
}

func (r *fieldReader) str(key string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.t.String(key)
	r.err = err

	return v
}

func (r *fieldReader) strOr(key, def string) string {
	return r.t.StringOr(key, def)
}

func (r *fieldReader) int(key string) int {
	if r.err != nil {
		return 0
	}
	v, err := r.t.Int(key)
	r.err = err

	return v
}

func (r *fieldReader) intOr(key string, def int) int {
	if r.err != nil {
		return def
	}
	v, err := r.t.IntOr(key, def)
	r.err = err

	return v
}

func (r *fieldReader) boolOr(key string, def bool) bool {
	if r.err != nil {
		return def
	}
	v, err := r.t.BoolOr(key, def)
	r.err = err

	return v
}

func (r *fieldReader) correlation() commands.CorrelationID {
	raw, ok := r.t[keyCorrelation]
	if r.err != nil || !ok || raw == "" {
		return commands.EmptyCorrelation
	}
	id, err := commands.ParseCorrelationID(raw)
	if err != nil {
		r.err = fmt.Errorf("%w: %s=%q", ErrInvalidValue, keyCorrelation, raw)
	}

	return id
}

func (r *fieldReader) fail(key, raw string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
}

// checkCount verifies an advertised list length against the rows present.
func (r *fieldReader) checkCount(n int) {
	if r.err != nil || !r.t.Has(keyCount) {
		return
	}
	want := r.int(keyCount)
	if r.err == nil && want != n {
		r.err = fmt.Errorf("%w: %s=%d but %d entries", ErrInvalidValue, keyCount, want, n)
	}
}

func encodeHeartbeat(w *TagWriter, c commands.HeartbeatCommand) error {
	w.Int64(keyHbInterval, c.Interval.Milliseconds())
	w.Int(keyHbMode, int(c.Mode))
	if !c.Timestamp.IsZero() {
		w.Int64(keyTimestamp, c.Timestamp.UnixMilli())
	}

	return nil
}

func decodeHeartbeat(t TagValues) (commands.HeartbeatCommand, error) {
	r := fieldReader{t: t}
	interval := r.intOr(keyHbInterval, defaultHeartbeatMillis)
	mode := r.intOr(keyHbMode, int(commands.HeartbeatNormal))
	var ts time.Time
	if r.err == nil {
		millis, err := t.Int64Or(keyTimestamp, 0)
		r.err = err
		if millis != 0 {
			ts = time.UnixMilli(millis)
		}
	}
	if r.err != nil {
		return commands.HeartbeatCommand{}, r.err
	}

	return commands.HeartbeatCommand{
		Mode:      commands.HeartbeatMode(mode),
		Interval:  time.Duration(interval) * time.Millisecond,
		Timestamp: ts,
	}, nil
}

func encodeJoin(w *TagWriter, c commands.NewJoinerCommand) error {
	w.String(keyName, c.Name)
	w.String(keyUUID, c.UUID)
	w.Int(keyVersion, c.APIVersion)
	w.Int(keyPlatform, int(c.Platform))

	return nil
}

func decodeJoin(t TagValues) (commands.NewJoinerCommand, error) {
	r := fieldReader{t: t}
	cmd := commands.NewJoinerCommand{
		Name:       r.str(keyName),
		UUID:       r.str(keyUUID),
		APIVersion: r.int(keyVersion),
		Platform:   commands.ApiPlatform(r.intOr(keyPlatform, int(commands.PlatformArduino))),
	}

	return cmd, r.err
}

func encodePairing(w *TagWriter, c commands.PairingCommand) error {
	w.String(keyName, c.Name)
	w.String(keyUUID, c.UUID)

	return nil
}

func decodePairing(t TagValues) (commands.PairingCommand, error) {
	r := fieldReader{t: t}
	cmd := commands.PairingCommand{Name: r.str(keyName), UUID: r.str(keyUUID)}

	return cmd, r.err
}

func encodeAck(w *TagWriter, c commands.AcknowledgementCommand) error {
	w.String(keyCorrelation, c.Correlation.String())
	w.Int(keyAckStatus, int(c.Status))

	return nil
}

func decodeAck(t TagValues) (commands.AcknowledgementCommand, error) {
	r := fieldReader{t: t}
	cmd := commands.AcknowledgementCommand{
		Correlation: r.correlation(),
		Status:      commands.AckStatus(r.int(keyAckStatus)),
	}

	return cmd, r.err
}

func encodeDialog(w *TagWriter, c commands.DialogCommand) error {
	w.Int(keyDialogMode, int(c.Mode))
	w.String(keyHeader, c.Header)
	w.String(keyBuffer, c.Message)
	w.Int(keyButton1, int(c.Button1))
	w.Int(keyButton2, int(c.Button2))
	w.String(keyCorrelation, c.Correlation.String())

	return nil
}

func decodeDialog(t TagValues) (commands.DialogCommand, error) {
	r := fieldReader{t: t}
	cmd := commands.DialogCommand{
		Mode:        commands.DialogMode(r.int(keyDialogMode)),
		Header:      r.strOr(keyHeader, ""),
		Message:     r.strOr(keyBuffer, ""),
		Button1:     commands.ButtonType(r.intOr(keyButton1, int(commands.ButtonNone))),
		Button2:     commands.ButtonType(r.intOr(keyButton2, int(commands.ButtonNone))),
		Correlation: r.correlation(),
	}

	return cmd, r.err
}

func encodeBootstrap(w *TagWriter, c commands.BootstrapCommand) error {
	w.Int(keyBootType, int(c.Type))

	return nil
}

func decodeBootstrap(t TagValues) (commands.BootstrapCommand, error) {
	r := fieldReader{t: t}
	bt := commands.BootstrapType(r.int(keyBootType))
	if r.err == nil && bt != commands.BootstrapStart && bt != commands.BootstrapEnd {
		r.fail(keyBootType, t[keyBootType])
	}

	return commands.BootstrapCommand{Type: bt}, r.err
}

func encodeChange(w *TagWriter, c commands.ChangeCommand) error {
	w.Int(keyID, c.MenuID)
	w.String(keyCorrelation, c.Correlation.String())
	w.Int(keyChangeType, int(c.ChangeType))
	if c.ChangeType != commands.ChangeAbsoluteList {
		w.String(keyCurrent, c.Value)
		return nil
	}
	if len(c.Names) > 0 {
		return w.PairedList(keyCount, namePrefix, valuePrefix, c.Names, c.Values)
	}

	return w.List(keyCount, valuePrefix, c.Values)
}

func decodeChange(t TagValues) (commands.ChangeCommand, error) {
	r := fieldReader{t: t}
	cmd := commands.ChangeCommand{
		MenuID:      r.int(keyID),
		Correlation: r.correlation(),
		ChangeType:  commands.ChangeType(r.int(keyChangeType)),
	}
	if r.err != nil {
		return commands.ChangeCommand{}, r.err
	}
	switch cmd.ChangeType {
	case commands.ChangeDelta, commands.ChangeAbsolute:
		cmd.Value = r.str(keyCurrent)
	case commands.ChangeAbsoluteList:
		cmd.Names, cmd.Values = t.PairedList(keyCount, namePrefix, valuePrefix)
		r.checkCount(len(cmd.Values))
	default:
		r.fail(keyChangeType, t[keyChangeType])
	}

	return cmd, r.err
}

func writeItem(w *TagWriter, parent int, info menu.ItemInfo) {
	w.Int(keyParentID, parent)
	w.Int(keyID, info.ID)
	w.String(keyName, info.Name)
	w.Bool(keyReadOnly, info.ReadOnly)
	w.Bool(keyVisible, info.Visible)
	w.Bool(keyLocalOnly, info.LocalOnly)
	w.Int(keyEeprom, info.EepromAddress)
	if info.VariableName != "" {
		w.String(keyVariable, info.VariableName)
	}
	if info.FunctionName != "" {
		w.String(keyFunction, info.FunctionName)
	}
}

func (r *fieldReader) item() (int, menu.ItemInfo) {
	parent := r.int(keyParentID)
	info := menu.ItemInfo{
		ID:            r.int(keyID),
		Name:          r.str(keyName),
		ReadOnly:      r.boolOr(keyReadOnly, false),
		Visible:       r.boolOr(keyVisible, true),
		LocalOnly:     r.boolOr(keyLocalOnly, false),
		EepromAddress: r.intOr(keyEeprom, -1),
		VariableName:  r.strOr(keyVariable, ""),
		FunctionName:  r.strOr(keyFunction, ""),
	}

	return parent, info
}

func encodeAnalogBoot(w *TagWriter, c commands.AnalogBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyAnalogMax, c.Item.MaxValue)
	w.Int(keyAnalogOffset, c.Item.Offset)
	w.Int(keyAnalogDivisor, c.Item.Divisor)
	w.Int(keyAnalogStep, c.Item.Step)
	w.String(keyAnalogUnit, c.Item.UnitName)
	w.Int(keyCurrent, c.Value)

	return nil
}

func decodeAnalogBoot(t TagValues) (commands.AnalogBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.AnalogMenuItem{
		ItemInfo: info,
		MaxValue: r.int(keyAnalogMax),
		Offset:   r.intOr(keyAnalogOffset, 0),
		Divisor:  r.intOr(keyAnalogDivisor, 1),
		Step:     r.intOr(keyAnalogStep, 1),
		UnitName: r.strOr(keyAnalogUnit, ""),
	}
	value := r.int(keyCurrent)

	return commands.AnalogBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeBooleanBoot(w *TagWriter, c commands.BooleanBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyBoolNaming, int(c.Item.Naming))
	w.Bool(keyCurrent, c.Value)

	return nil
}

func decodeBooleanBoot(t TagValues) (commands.BooleanBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.BooleanMenuItem{ItemInfo: info, Naming: menu.BooleanNaming(r.intOr(keyBoolNaming, int(menu.NamingTrueFalse)))}
	var value bool
	if r.err == nil {
		value, r.err = t.Bool(keyCurrent)
	}

	return commands.BooleanBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeEnumBoot(w *TagWriter, c commands.EnumBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyCurrent, c.Value)

	return w.List(keyCount, valuePrefix, c.Item.Entries)
}

func decodeEnumBoot(t TagValues) (commands.EnumBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	entries := t.List(keyCount, valuePrefix)
	r.checkCount(len(entries))
	item := menu.EnumMenuItem{ItemInfo: info, Entries: entries}
	value := r.int(keyCurrent)

	return commands.EnumBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeActionBoot(w *TagWriter, c commands.ActionBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)

	return nil
}

func decodeActionBoot(t TagValues) (commands.ActionBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()

	return commands.ActionBootCommand{SubMenuID: parent, Item: menu.ActionMenuItem{ItemInfo: info}}, r.err
}

func encodeSubMenuBoot(w *TagWriter, c commands.SubMenuBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Bool(keySecured, c.Item.Secured)

	return nil
}

func decodeSubMenuBoot(t TagValues) (commands.SubMenuBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.SubMenuItem{ItemInfo: info, Secured: r.boolOr(keySecured, false)}

	return commands.SubMenuBootCommand{SubMenuID: parent, Item: item}, r.err
}

func encodeTextBoot(w *TagWriter, c commands.TextBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyMaxLength, c.Item.TextLength)
	w.Int(keyEditType, int(c.Item.EditType))
	w.String(keyCurrent, c.Value)

	return nil
}

func decodeTextBoot(t TagValues) (commands.TextBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.EditableTextMenuItem{
		ItemInfo:   info,
		TextLength: r.int(keyMaxLength),
		EditType:   menu.EditItemType(r.intOr(keyEditType, int(menu.EditPlainText))),
	}
	value := r.strOr(keyCurrent, "")

	return commands.TextBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeLargeNumberBoot(w *TagWriter, c commands.LargeNumberBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyDecimalPlaces, c.Item.DecimalPlaces)
	w.Int(keyMaxLength, c.Item.DigitsAllowed)
	w.Bool(keyNegative, c.Item.NegativeAllowed)
	w.String(keyCurrent, c.Value.StringFixed(int32(c.Item.DecimalPlaces)))

	return nil
}

func decodeLargeNumberBoot(t TagValues) (commands.LargeNumberBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.LargeNumberMenuItem{
		ItemInfo:        info,
		DecimalPlaces:   r.int(keyDecimalPlaces),
		DigitsAllowed:   r.int(keyMaxLength),
		NegativeAllowed: r.boolOr(keyNegative, false),
	}
	raw := r.str(keyCurrent)
	var value decimal.Decimal
	if r.err == nil {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			r.fail(keyCurrent, raw)
		}
		value = v
	}

	return commands.LargeNumberBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeFloatBoot(w *TagWriter, c commands.FloatBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyDecimalPlaces, c.Item.DecimalPlaces)
	w.String(keyCurrent, strconv.FormatFloat(c.Value, 'f', -1, 64))

	return nil
}

func decodeFloatBoot(t TagValues) (commands.FloatBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.FloatMenuItem{ItemInfo: info, DecimalPlaces: r.int(keyDecimalPlaces)}
	raw := r.str(keyCurrent)
	var value float64
	if r.err == nil {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			r.fail(keyCurrent, raw)
		}
		value = v
	}

	return commands.FloatBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeRgbBoot(w *TagWriter, c commands.RgbBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Bool(keyAlpha, c.Item.IncludeAlpha)
	w.String(keyCurrent, c.Value.String())

	return nil
}

func decodeRgbBoot(t TagValues) (commands.RgbBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.Rgb32MenuItem{ItemInfo: info, IncludeAlpha: r.boolOr(keyAlpha, false)}
	raw := r.str(keyCurrent)
	var value menu.PortableColor
	if r.err == nil {
		v, err := menu.ParsePortableColor(raw)
		if err != nil {
			r.fail(keyCurrent, raw)
		}
		value = v
	}

	return commands.RgbBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeScrollBoot(w *TagWriter, c commands.ScrollChoiceBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyWidth, c.Item.ItemWidth)
	w.Int(keyScrollOffset, c.Item.EepromOffset)
	w.Int(keyCount, c.Item.NumEntries)
	w.Int(keyScrollMode, int(c.Item.ChoiceMode))
	w.String(keyCurrent, c.Value.String())

	return nil
}

func decodeScrollBoot(t TagValues) (commands.ScrollChoiceBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	item := menu.ScrollChoiceMenuItem{
		ItemInfo:     info,
		ItemWidth:    r.int(keyWidth),
		EepromOffset: r.intOr(keyScrollOffset, 0),
		NumEntries:   r.int(keyCount),
		ChoiceMode:   menu.ScrollChoiceMode(r.intOr(keyScrollMode, int(menu.ScrollArrayInRAM))),
	}
	raw := r.str(keyCurrent)
	var value menu.ScrollPosition
	if r.err == nil {
		v, err := menu.ParseScrollPosition(raw)
		if err != nil {
			r.fail(keyCurrent, raw)
		}
		value = v
	}

	return commands.ScrollChoiceBootCommand{SubMenuID: parent, Item: item, Value: value}, r.err
}

func encodeRuntimeListBoot(w *TagWriter, c commands.RuntimeListBootCommand) error {
	writeItem(w, c.SubMenuID, c.Item.ItemInfo)
	w.Int(keyRows, c.Item.InitialRows)
	if len(c.Names) > 0 {
		return w.PairedList(keyCount, namePrefix, valuePrefix, c.Names, c.Values)
	}

	return w.List(keyCount, valuePrefix, c.Values)
}

func decodeRuntimeListBoot(t TagValues) (commands.RuntimeListBootCommand, error) {
	r := fieldReader{t: t}
	parent, info := r.item()
	names, values := t.PairedList(keyCount, namePrefix, valuePrefix)
	r.checkCount(len(values))
	item := menu.RuntimeListMenuItem{ItemInfo: info, InitialRows: r.intOr(keyRows, len(values))}

	return commands.RuntimeListBootCommand{SubMenuID: parent, Item: item, Values: values, Names: names}, r.err
}
