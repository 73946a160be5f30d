package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/plantd/internal/irrigation"
	"github.com/autopeer-io/plantd/pkg/app"
	"github.com/autopeer-io/plantd/pkg/log"
	"github.com/autopeer-io/plantd/pkg/options"
)

type PlantdOptions struct {
	TransportOptions *options.TransportOptions `json:"transport" mapstructure:"transport"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	NatsOptions      *options.NatsOptions      `json:"nats" mapstructure:"nats"`
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	DatabaseOptions  *options.DatabaseOptions  `json:"database" mapstructure:"database"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	PolicyOptions    *options.PolicyOptions    `json:"policy" mapstructure:"policy"`
	DispatchOptions  *options.DispatchOptions  `json:"dispatch" mapstructure:"dispatch"`
	MonitorOptions   *options.MonitorOptions   `json:"monitor" mapstructure:"monitor"`
	RetentionOptions *options.RetentionOptions `json:"retention" mapstructure:"retention"`
	IngressOptions   *options.IngressOptions   `json:"ingress" mapstructure:"ingress"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*PlantdOptions)(nil)

func NewPlantdOptions() *PlantdOptions {
	return &PlantdOptions{
		TransportOptions: options.NewTransportOptions(),
		MqttOptions:      options.NewMqttOptions(),
		NatsOptions:      options.NewNatsOptions(),
		HttpOptions:      options.NewHttpOptions(),
		DatabaseOptions:  options.NewDatabaseOptions(),
		S3Options:        options.NewS3Options(),
		PolicyOptions:    options.NewPolicyOptions(),
		DispatchOptions:  options.NewDispatchOptions(),
		MonitorOptions:   options.NewMonitorOptions(),
		RetentionOptions: options.NewRetentionOptions(),
		IngressOptions:   options.NewIngressOptions(),
		Log:              log.NewOptions(),
	}
}

func (o *PlantdOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.TransportOptions.AddFlags(fss.FlagSet("transport"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.NatsOptions.AddFlags(fss.FlagSet("nats"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("database"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.PolicyOptions.AddFlags(fss.FlagSet("policy"))
	o.DispatchOptions.AddFlags(fss.FlagSet("dispatch"))
	o.MonitorOptions.AddFlags(fss.FlagSet("monitor"))
	o.RetentionOptions.AddFlags(fss.FlagSet("retention"))
	o.IngressOptions.AddFlags(fss.FlagSet("ingress"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *PlantdOptions) Complete() error {
	return nil
}

func (o *PlantdOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.TransportOptions.Validate()...)
	switch o.TransportOptions.Driver {
	case options.TransportMQTT:
		errs = append(errs, o.MqttOptions.Validate()...)
	case options.TransportNATS:
		errs = append(errs, o.NatsOptions.Validate()...)
	}
	errs = append(errs, o.HttpOptions.Validate()...)
	if err := o.HttpOptions.ValidateWriteTimeout(o.DispatchOptions.Budget()); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.DatabaseOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.PolicyOptions.Validate()...)
	errs = append(errs, o.DispatchOptions.Validate()...)
	errs = append(errs, o.MonitorOptions.Validate()...)
	errs = append(errs, o.RetentionOptions.Validate()...)
	errs = append(errs, o.IngressOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *PlantdOptions) Config() (*irrigation.Config, error) {
	return &irrigation.Config{
		TransportOptions: o.TransportOptions,
		MqttOptions:      o.MqttOptions,
		NatsOptions:      o.NatsOptions,
		HttpOptions:      o.HttpOptions,
		DatabaseOptions:  o.DatabaseOptions,
		S3Options:        o.S3Options,
		PolicyOptions:    o.PolicyOptions,
		DispatchOptions:  o.DispatchOptions,
		MonitorOptions:   o.MonitorOptions,
		RetentionOptions: o.RetentionOptions,
		IngressOptions:   o.IngressOptions,
	}, nil
}
